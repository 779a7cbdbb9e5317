// Package di wires the cache engine and its collaborators together for
// typical deployments.
package di

import (
	"context"

	"go.uber.org/zap"

	"github.com/kenndeclouv/kythia-cache/cache"
	"github.com/kenndeclouv/kythia-cache/modelcache"
)

// Container manages the singleton engine instance and provides factory
// helpers for per-entity cached models.
type Container struct {
	engine *cache.Engine
	config cache.Config
	logger *zap.Logger
}

// NewContainer builds a container around a fresh engine. The engine is not
// started; call Start.
func NewContainer(config cache.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := cache.NewEngine(config, logger)
	if err != nil {
		return nil, err
	}
	return &Container{
		engine: engine,
		config: config,
		logger: logger,
	}, nil
}

// NewContainerWithDefaults builds a container with the default engine
// configuration, for cases where no tuning is needed.
func NewContainerWithDefaults(logger *zap.Logger) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), logger)
}

// Start connects the engine to the shared backend.
func (c *Container) Start(ctx context.Context) error {
	return c.engine.Start(ctx)
}

// Stop shuts the engine down.
func (c *Container) Stop(ctx context.Context) error {
	return c.engine.Stop(ctx)
}

// Engine returns the singleton engine instance.
func (c *Container) Engine() *cache.Engine {
	return c.engine
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Collector returns a Prometheus collector for the engine's counters and
// connection state.
func (c *Container) Collector() *cache.Collector {
	return cache.NewCollector(c.engine)
}

// NewCachedModel builds a per-entity facade on the container's engine.
//
// Since Go methods cannot have type parameters, this is a package-level
// function: NewCachedModel[User](container, userRepository).
func NewCachedModel[T any](c *Container, repo modelcache.Repository[T], opts ...modelcache.ModelOption) *modelcache.CachedModel[T] {
	opts = append([]modelcache.ModelOption{modelcache.WithLogger(c.logger)}, opts...)
	return modelcache.New(c.engine, repo, opts...)
}
