package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// LogConfig 日志配置接口，由 config.LogConfig 实现
type LogConfig interface {
	GetLevel() string
	GetOutput() string
	GetFile() string
}

// Logger 自定义日志器
type Logger struct {
	zapLogger *zap.Logger
}

// LumberjackConfig lumberjack 配置
type LumberjackConfig struct {
	Filename   string // 日志文件路径
	MaxSize    int    // 每个日志文件的最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
}

var defaultLogger *Logger

func init() {
	defaultLogger = newWithSyncer(INFO, zapcore.Lock(os.Stdout))
}

// Init 根据配置初始化默认日志器
func Init(cfg LogConfig) error {
	level := ParseLogLevel(cfg.GetLevel())

	var l *Logger
	switch strings.ToLower(cfg.GetOutput()) {
	case "file":
		if cfg.GetFile() == "" {
			return fmt.Errorf("log output is file but no file path configured")
		}
		l = NewWithLumberjackConfig(level, LumberjackConfig{Filename: cfg.GetFile(), Compress: true})
	case "stderr":
		l = newWithSyncer(level, zapcore.Lock(os.Stderr))
	default:
		l = newWithSyncer(level, zapcore.Lock(os.Stdout))
	}

	SetDefaultLogger(l)
	return nil
}

// NewWithLumberjackConfig 使用自定义 lumberjack 配置创建日志器
func NewWithLumberjackConfig(level LogLevel, config LumberjackConfig) *Logger {
	// 设置默认值
	if config.MaxSize == 0 {
		config.MaxSize = 100
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}
	if config.MaxAge == 0 {
		config.MaxAge = 28
	}

	return newWithSyncer(level, zapcore.AddSync(&lumberjack.Logger{
		Filename:   config.Filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}))
}

// NewWithCore 使用给定的 zapcore.Core 创建日志器，测试中用于捕获日志
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{zapLogger: zap.New(core, zap.AddCallerSkip(2), zap.AddCaller())}
}

func newWithSyncer(level LogLevel, ws zapcore.WriteSyncer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	encoderConfig.CallerKey = "caller"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "message"

	var encoder zapcore.Encoder
	if level == DEBUG {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(zapLevelFromLogLevel(level)))
	return NewWithCore(core)
}

// Debug 调试日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zapLogger.Debug(fmt.Sprintf(format, args...))
}

// Info 信息日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.zapLogger.Info(fmt.Sprintf(format, args...))
}

// Warn 警告日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zapLogger.Warn(fmt.Sprintf(format, args...))
}

// Error 错误日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.zapLogger.Error(fmt.Sprintf(format, args...))
}

// Fatal 致命错误日志
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zapLogger.Fatal(fmt.Sprintf(format, args...))
}

// Sync 同步日志
func (l *Logger) Sync() {
	_ = l.zapLogger.Sync()
}

// With 添加字段
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zapLogger: l.zapLogger.With(fields...)}
}

// SetDefaultLogger 设置默认日志器
func SetDefaultLogger(l *Logger) {
	if defaultLogger != nil {
		defaultLogger.Sync()
	}
	defaultLogger = l
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}

func Sync() {
	defaultLogger.Sync()
}

func With(fields ...zap.Field) *Logger {
	return defaultLogger.With(fields...)
}

// ParseLogLevel 解析日志级别字符串
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// zapLevelFromLogLevel 转换日志级别
func zapLevelFromLogLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetDefaultZapLogger 获取默认的zap logger
func GetDefaultZapLogger() *zap.Logger {
	return defaultLogger.zapLogger
}
