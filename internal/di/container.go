// Package di provides dependency injection configuration for the fswatch host.
package di

import (
	"github.com/samber/do/v2"

	"github.com/fsbridge/fsbridge/internal/config"
	"github.com/fsbridge/fsbridge/internal/di/providers"
	"github.com/fsbridge/fsbridge/internal/host"
	"github.com/fsbridge/fsbridge/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Workers
	do.Provide(injector, providers.ProvideScheduler)

	// Script host
	do.Provide(injector, providers.ProvideHost)

	return injector
}

// Bootstrap initializes all services and returns the host.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) (*host.Host, error) {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return nil, err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)

	return do.Invoke[*host.Host](injector)
}
