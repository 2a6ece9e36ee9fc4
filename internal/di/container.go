// Package di provides dependency injection configuration for the bpm4b server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/bpm4b/bpm4b/internal/api"
	"github.com/bpm4b/bpm4b/internal/config"
	"github.com/bpm4b/bpm4b/internal/di/providers"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/scratch"
	"github.com/bpm4b/bpm4b/internal/service"
	"github.com/bpm4b/bpm4b/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(opts config.Options) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, opts)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideScratchManager)

	// Business services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideConvertService)

	// Workers
	do.Provide(injector, providers.ProvideScratchSweeper)

	// Server
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideAPIServer)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	services := []func() error{
		invoke[*config.Config](injector),
		invoke[*logger.Logger](injector),
		invoke[*scratch.Manager](injector),
		invoke[*validation.Validator](injector),
		invoke[*service.ConvertService](injector),
		invoke[*providers.ScratchSweeper](injector),
		invoke[*providers.RateLimiterHandle](injector),
		invoke[*api.Server](injector),
		invoke[*providers.HTTPServerHandle](injector),
	}

	for _, start := range services {
		if err := start(); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](injector do.Injector) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
