package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the CLI binaries. Production builds log JSON;
// anything else gets the colored development encoder.
func New(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return config.Build(zap.AddCaller())
}

// ForSDK returns the logger embedded into pipeline components. The SDK is
// silent unless the host enables debug narration: production builds must
// never write to the host application's console.
func ForSDK(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	log, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log.Named("telling")
}
