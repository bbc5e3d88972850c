package model

import (
	"time"
)

// UserType 用户类型
type UserType string

const (
	UserTypeInvestor UserType = "investor"
	UserTypeCreator  UserType = "creator"
	UserTypeAdmin    UserType = "admin"
)

// UserModel 用户目录，核心流程只读取钱包地址
type UserModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WalletAddress string   `json:"wallet_address" gorm:"size:64;uniqueIndex;not null"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	UserType      UserType `json:"user_type" gorm:"size:16;not null"`
}

// TableName 自定义表名
func (UserModel) TableName() string {
	return "app_user"
}
