// Package providers contains dependency injection providers for the bpm4b server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/logger"
)

// ProvideConfig provides the application configuration. The load options
// must be registered first with do.ProvideValue.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	opts := do.MustInvoke[config.Options](i)
	return config.Load(opts)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting bpm4b server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"scratch_path", cfg.Convert.ScratchPath,
		"chapter_policy", cfg.Convert.ChapterPolicy,
	)

	return log, nil
}
