package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON logger for production and a colored console logger otherwise.
func New(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return config.Build()
}

// Must is New for process startup, where there is nothing better to do
// than fall back to a production logger.
func Must(environment string) *zap.Logger {
	l, err := New(environment)
	if err != nil {
		l, _ = zap.NewProduction()
	}
	return l
}
