// Package app wires the engine's ambient and domain stacks together as an
// fx module, following the teacher's internal/gateway.Module pattern of a
// flat fx.Options list of providers plus an fx.Invoke lifecycle hook.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/lobcore/pkg/config"
	"github.com/abdoElHodaky/lobcore/pkg/lob/book"
	"github.com/abdoElHodaky/lobcore/pkg/lob/worker"
	"github.com/abdoElHodaky/lobcore/pkg/logging"
	"github.com/abdoElHodaky/lobcore/pkg/metrics"
)

// ConfigPath is the yaml file NewConfig reads; bind it with fx.Replace or
// fx.Supply to point at a specific deployment's config.
type ConfigPath string

// Module assembles a ready-to-run Book: config, logger, metrics registry,
// and the façade itself, plus a lifecycle hook that starts/stops the
// worker pool alongside the fx app.
var Module = fx.Options(
	fx.Provide(NewConfig),
	fx.Provide(NewLogger),
	fx.Provide(NewMetrics),
	fx.Provide(NewBook),
	fx.Invoke(registerLifecycle),
)

// NewConfig loads the engine configuration from ConfigPath, falling back
// to config.DefaultEngineConfig when path is empty.
func NewConfig(path ConfigPath) (*config.EngineConfig, error) {
	return config.LoadEngineConfig(string(path))
}

// NewLogger builds the process-wide zap logger from cfg.Logging.
func NewLogger(cfg *config.EngineConfig) (*zap.Logger, error) {
	return logging.New(cfg.Logging)
}

// NewMetrics builds the Prometheus registry, honoring cfg.Metrics.Enabled.
func NewMetrics(cfg *config.EngineConfig) *metrics.Registry {
	return metrics.New(cfg.Metrics.Enabled)
}

// NewBook constructs the façade with a nil trade sink. It takes no
// worker.TradeSink from the fx graph, so trade reports built by this
// module are not delivered anywhere.
func NewBook(cfg *config.EngineConfig, log *zap.Logger, mx *metrics.Registry) *book.Book {
	var sink worker.TradeSink
	return book.New(cfg, log, mx, sink)
}

func registerLifecycle(lc fx.Lifecycle, b *book.Book, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting matching engine")
			b.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping matching engine")
			done := make(chan struct{})
			go func() {
				b.Shutdown()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
