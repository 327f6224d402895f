package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger 创建一个新的日志记录器
func NewLogger(debug bool) *zap.Logger {
	logger, err := buildConfig(debug).Build()
	if err != nil {
		panic("failed to initialize logging: " + err.Error())
	}
	return logger
}

// NewFileLogger 创建同时输出到文件的日志记录器，用于长时间运行的预览服务
func NewFileLogger(debug bool, path string) *zap.Logger {
	config := buildConfig(debug)
	config.OutputPaths = []string{"stderr", path}

	logger, err := config.Build()
	if err != nil {
		panic("failed to initialize logging: " + err.Error())
	}
	return logger
}

// buildConfig 构建zap配置
func buildConfig(debug bool) zap.Config {
	config := zap.NewProductionConfig()

	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	config.DisableStacktrace = true

	return config
}
