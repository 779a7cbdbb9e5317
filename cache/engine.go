package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kenndeclouv/kythia-cache/internal/localcache"
	"github.com/kenndeclouv/kythia-cache/internal/sharedcache"
)

// Engine is the hybrid cache core: it decides per operation whether the
// shared backend, the local fallback store, or nothing serves the request,
// and keeps the two coherent under write traffic and partial outages.
//
// Construct one engine per process and inject it into per-entity facades.
// All methods are safe for concurrent use. Backend failures never escape:
// reads degrade to misses, writes are skipped, and everything is counted
// and logged.
type Engine struct {
	cfg      Config
	codec    KeyCodec
	sup      *sharedcache.Supervisor
	shared   *sharedcache.Store
	local    *localcache.Store
	counters *Counters
	log      *zap.Logger
	closed   atomic.Bool
}

// NewEngine validates the configuration and assembles the engine. The engine
// does not connect until Start is called.
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	namespace := cfg.Version + KeySeparator
	sup := sharedcache.NewSupervisor(sharedcache.Config{
		Endpoints:      cfg.Endpoints,
		Password:       cfg.Password,
		DB:             cfg.DB,
		Strict:         cfg.Strict,
		Namespace:      namespace,
		ErrorThreshold: cfg.ErrorThreshold,
		ErrorWindow:    cfg.ErrorWindow,
		ReconnectDelay: cfg.ReconnectDelay,
		DialTimeout:    cfg.DialTimeout,
	}, logger)

	local := localcache.New(localcache.Config{
		Capacity:           cfg.LocalCapacity,
		NumShards:          cfg.LocalNumShards,
		EvictionPercentage: cfg.LocalEvictionPercentage,
	})
	if cfg.Strict {
		// Strict deployments must never serve node-local data.
		local.SetDisabled(true)
	}

	return &Engine{
		cfg:      cfg,
		codec:    NewKeyCodec(cfg.Version),
		sup:      sup,
		shared:   sharedcache.NewStore(sup, namespace, logger),
		local:    local,
		counters: newCounters(),
		log:      logger.With(zap.String("component", "cache.engine")),
	}, nil
}

// Start attempts the initial shared-backend connection. A degraded start is
// not an error; the supervisor logs it and schedules reconnection.
func (e *Engine) Start(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.sup.Start(ctx)
}

// Stop tears down the shared connection and clears the local store.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.local.Clear()
	return e.sup.Stop()
}

// State reports the current connection state for health checks.
func (e *Engine) State() ConnectionState {
	return ConnectionState(e.sup.State())
}

// Codec returns the key codec bound to this engine's cache version.
func (e *Engine) Codec() KeyCodec {
	return e.codec
}

// Counters exposes the cumulative operation counters.
func (e *Engine) Counters() *Counters {
	return e.counters
}

// Config returns a copy of the normalized engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// LocalSize reports the number of entries in the local fallback store.
func (e *Engine) LocalSize() int {
	return e.local.Size()
}

// Lookup fetches the entry stored under key from whichever backend is
// active. Any backend or decode failure degrades to a miss.
func (e *Engine) Lookup(ctx context.Context, key string) (Entry, bool) {
	switch e.State() {
	case StateConnected:
		data, ok, err := e.shared.Get(ctx, key)
		if err != nil {
			e.counters.errors.Inc()
			e.counters.misses.Inc()
			e.log.Warn("shared cache read failed", zap.String("key", key), zap.Error(err))
			return Entry{}, false
		}
		if !ok {
			e.counters.misses.Inc()
			return Entry{}, false
		}
		ent, err := DecodeEntry(data)
		if err != nil {
			e.counters.errors.Inc()
			e.counters.misses.Inc()
			e.log.Warn("malformed cache payload treated as miss", zap.String("key", key), zap.Error(err))
			_ = e.shared.Delete(ctx, key)
			return Entry{}, false
		}
		e.counters.hitsShared.Inc()
		return ent, true

	case StateDisconnectedFallback:
		v, ok := e.local.Get(key)
		if !ok {
			e.counters.misses.Inc()
			return Entry{}, false
		}
		e.counters.hitsLocal.Inc()
		if v == nil {
			return NegativeEntry(), true
		}
		ent, ok := v.(Entry)
		if !ok {
			e.counters.misses.Inc()
			return Entry{}, false
		}
		return ent, true

	default:
		// Strict mode with the backend down: caching is disabled entirely.
		e.counters.misses.Inc()
		return Entry{}, false
	}
}

// Put writes an entry to the active backend with the given TTL, registering
// it under every tag when the shared backend is serving. Failures skip the
// cache write; the caller's repository result is unaffected.
func (e *Engine) Put(ctx context.Context, key string, ent Entry, ttl time.Duration, tags []string) {
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}
	switch e.State() {
	case StateConnected:
		data, err := EncodeEntry(ent)
		if err != nil {
			e.counters.errors.Inc()
			e.log.Warn("cache payload encoding failed, skipping write", zap.String("key", key), zap.Error(err))
			return
		}
		if err := e.shared.Set(ctx, key, data, ttl, tags); err != nil {
			e.counters.errors.Inc()
			e.log.Warn("shared cache write failed", zap.String("key", key), zap.Error(err))
			return
		}
		e.counters.writes.Inc()

	case StateDisconnectedFallback:
		if ent.Kind == EntryNegative {
			e.local.Set(key, nil, ttl)
		} else {
			e.local.Set(key, ent, ttl)
		}
		e.counters.writes.Inc()
	}
}

// Remove deletes the given keys from the active backend.
func (e *Engine) Remove(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	switch e.State() {
	case StateConnected:
		if err := e.shared.Delete(ctx, keys...); err != nil {
			e.counters.errors.Inc()
			e.log.Warn("shared cache delete failed", zap.Error(err))
			return
		}
		e.counters.clears.Inc()
	case StateDisconnectedFallback:
		for _, key := range keys {
			e.local.Delete(key)
		}
		e.counters.clears.Inc()
	}
}

// InvalidateTags removes every entry registered under the given tags. The
// local store has no tag index; there the whole entity partition is cleared
// instead.
func (e *Engine) InvalidateTags(ctx context.Context, entity string, tags []string) {
	switch e.State() {
	case StateConnected:
		if err := e.shared.InvalidateTags(ctx, tags); err != nil {
			e.counters.errors.Inc()
			e.log.Warn("tag invalidation failed", zap.Strings("tags", tags), zap.Error(err))
			return
		}
		e.counters.clears.Inc()
	case StateDisconnectedFallback:
		e.local.ClearPrefix(e.codec.EntityPrefix(entity))
		e.counters.clears.Inc()
	}
}
