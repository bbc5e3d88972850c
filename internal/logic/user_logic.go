package logic

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tshetendev/Startup-Investment/internal/ledger"
	"github.com/tshetendev/Startup-Investment/internal/model"
)

// UserLogic 用户目录，注册与登录由外部系统负责
type UserLogic struct {
	db *gorm.DB
}

// NewUserLogic 创建用户业务逻辑
func NewUserLogic(db *gorm.DB) *UserLogic {
	return &UserLogic{db: db}
}

// FindByWallet 按钱包地址查找用户
func (u *UserLogic) FindByWallet(ctx context.Context, address string) (*model.UserModel, error) {
	var user model.UserModel
	if err := u.db.WithContext(ctx).Where("wallet_address = ?", ledger.NormalizeAddress(address)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	return &user, nil
}

// Upsert 写入或更新用户目录
func (u *UserLogic) Upsert(ctx context.Context, user *model.UserModel) error {
	if !ledger.IsAddress(user.WalletAddress) {
		return fmt.Errorf("%w: invalid wallet address", ErrInvalidInput)
	}
	switch user.UserType {
	case model.UserTypeInvestor, model.UserTypeCreator, model.UserTypeAdmin:
	default:
		return fmt.Errorf("%w: unknown user type %q", ErrInvalidInput, user.UserType)
	}
	user.WalletAddress = ledger.NormalizeAddress(user.WalletAddress)

	existing, err := u.FindByWallet(ctx, user.WalletAddress)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return u.db.WithContext(ctx).Create(user).Error
	case err != nil:
		return err
	}
	user.Id = existing.Id
	user.CreatedAt = existing.CreatedAt
	return u.db.WithContext(ctx).Save(user).Error
}
