package common

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

// ILogger 统一的日志接口
type ILogger interface {
	Debugf(format string, params ...interface{})

	Infof(format string, params ...interface{})

	Warnf(format string, params ...interface{})

	Errorf(format string, params ...interface{})

	Criticalf(format string, params ...interface{})
}

// LogLevel 日志级别
type LogLevel string

// 支持的日志级别
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (p LogLevel) zapLevel() (level zapcore.Level, ok bool) {
	switch p {
	case LogLevelDebug:
		return zapcore.DebugLevel, true
	case LogLevelInfo:
		return zapcore.InfoLevel, true
	case LogLevelWarn:
		return zapcore.WarnLevel, true
	case LogLevelError:
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// EnvProduction 生产环境
const EnvProduction = "prod"

//默认的记录日志的函数

// Debugf debug
func Debugf(format string, params ...interface{}) {
	logger.Debugf(format, params...)
}

// Infof info
func Infof(format string, params ...interface{}) {
	logger.Infof(format, params...)
}

// Warnf warn
func Warnf(format string, params ...interface{}) {
	logger.Warnf(format, params...)
}

// Errorf error
func Errorf(format string, params ...interface{}) {
	logger.Errorf(format, params...)
}

// Criticalf critical
func Criticalf(format string, params ...interface{}) {
	logger.Criticalf(format, params...)
}

//全局Logger,默认使用标准库,解析LogConfig后切换为zap
var logger ILogger = &StdLogger{}
var loggerMutex sync.Mutex

func initLogger(logConfig *LogConfig) error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger = NewZapLogger(logConfig)
	return nil
}

// SetLogger 替换全局的Logger实现
func SetLogger(l ILogger) {
	if l == nil {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger = l
}
