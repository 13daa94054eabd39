// Package logging builds the zap logger used throughout lobcore.
package logging

import (
	"github.com/abdoElHodaky/lobcore/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger from cfg. internal/app logs engine start/stop
// through it and book.New logs a fatal error if the hazard registry runs
// out of rows; workers hold a named child logger but emit nothing, and the
// hot CAS-retry path never logs.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableCaller = !cfg.EnableCaller
	zcfg.DisableStacktrace = !cfg.EnableStacktrace

	return zcfg.Build()
}

// NewNop returns a no-op logger, used as a safe default and in tests.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
