package logger

import (
	"github.com/cozy-creator/audio-adapters/internal/config"

	"go.uber.org/zap"
)

// NewLogger builds a logger for the configured environment. Every logger
// writes to stderr; stdout is reserved for the result envelope.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	switch cfg.Environment {
	case "prod":
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
		return zcfg.Build()
	case "test":
		return zap.NewNop(), nil
	default:
		zcfg := zap.NewDevelopmentConfig()
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
		return zcfg.Build()
	}
}
