package modelcache

import (
	"time"

	"go.uber.org/zap"
)

// modelConfig holds per-facade settings resolved at construction.
type modelConfig struct {
	entity       string
	defaultTTL   time.Duration
	aggregateTTL time.Duration
	logger       *zap.Logger
}

// ModelOption customizes a CachedModel at construction.
type ModelOption func(*modelConfig)

// WithEntity overrides the entity name derived from the record type.
func WithEntity(name string) ModelOption {
	return func(c *modelConfig) { c.entity = sanitizeEntityName(name) }
}

// WithDefaultTTL overrides the engine's default TTL for this entity's point
// and list lookups.
func WithDefaultTTL(d time.Duration) ModelOption {
	return func(c *modelConfig) { c.defaultTTL = d }
}

// WithAggregateTTL overrides the TTL for this entity's count and aggregate
// lookups.
func WithAggregateTTL(d time.Duration) ModelOption {
	return func(c *modelConfig) { c.aggregateTTL = d }
}

// WithLogger attaches a logger to the facade.
func WithLogger(l *zap.Logger) ModelOption {
	return func(c *modelConfig) { c.logger = l }
}

// callOptions are per-call overrides.
type callOptions struct {
	noCache bool
	ttl     time.Duration
}

// CallOption customizes one facade call.
type CallOption func(*callOptions)

// NoCache bypasses the cache entirely and talks to the repository directly.
// This is an explicit escape hatch, available even when the cache is
// healthy.
func NoCache() CallOption {
	return func(o *callOptions) { o.noCache = true }
}

// WithTTL overrides the entry TTL for this call.
func WithTTL(d time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = d }
}

func newCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o callOptions) ttlOr(fallback time.Duration) time.Duration {
	if o.ttl > 0 {
		return o.ttl
	}
	return fallback
}
