package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tshetendev/Startup-Investment/internal/logger"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Task     TaskConfig     `mapstructure:"task"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// LedgerConfig 账本网络配置
type LedgerConfig struct {
	RpcUrl         string        `mapstructure:"rpc_url"`         // RPC节点URL
	ChainId        int64         `mapstructure:"chain_id"`        // 期望的链ID，0表示不校验
	Confirmations  uint64        `mapstructure:"confirmations"`   // 结算所需确认数
	GasLimit       uint64        `mapstructure:"gas_limit"`       // 转账gas上限
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单次请求超时
	SettleTimeout  time.Duration `mapstructure:"settle_timeout"`  // 等待结算超时
	PollInterval   time.Duration `mapstructure:"poll_interval"`   // 回执轮询间隔
}

// AuthConfig 身份令牌配置
type AuthConfig struct {
	JwtSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type TaskConfig struct {
	ExpiryInterval    time.Duration `mapstructure:"expiry_interval"`    // 过期扫描间隔
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"` // 对账任务间隔
	ReconcileMaxAge   time.Duration `mapstructure:"reconcile_max_age"`  // 对账记录最长保留时间
}

// OutboxConfig 事件发件箱配置
type OutboxConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// SetDefaults 注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "crowdfunding")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("ledger.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("ledger.confirmations", 0)
	v.SetDefault("ledger.gas_limit", 21000)
	v.SetDefault("ledger.request_timeout", "15s")
	v.SetDefault("ledger.settle_timeout", "2m")
	v.SetDefault("ledger.poll_interval", "2s")
	v.SetDefault("auth.issuer", "cfs")
	v.SetDefault("task.expiry_interval", "1m")
	v.SetDefault("task.reconcile_interval", "30s")
	v.SetDefault("task.reconcile_max_age", "24h")
	v.SetDefault("outbox.interval", "2s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.pool_size", 8)
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "crowdfunding.events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cfs")

	SetDefaults(v)

	// 自动读取环境变量，例如 LEDGER_RPC_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	if config.Auth.JwtSecret == "" {
		logger.Warn("auth.jwt_secret is empty, every authenticated route will reject requests")
	}

	return &config
}
