package modelcache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kenndeclouv/kythia-cache/cache"
)

// Lookup scopes keep list, count, and aggregate keys from colliding with a
// point lookup on the same descriptor.
const (
	scopeMany  = "many"
	scopeCount = "count"
	scopeAgg   = "agg"
)

// CachedModel is the public per-entity cache facade. Reads route through the
// engine's active backend with request coalescing; writes go to the
// repository first and then invalidate by tag. Cache-subsystem failures are
// invisible to callers: the facade always degrades toward slower-but-correct
// repository access.
type CachedModel[T any] struct {
	engine       *cache.Engine
	repo         Repository[T]
	codec        cache.KeyCodec
	entity       string
	defaultTTL   time.Duration
	aggregateTTL time.Duration
	flight       singleflight.Group
	log          *zap.Logger
}

// pointResult carries a FindOne outcome through the coalescing group.
type pointResult[T any] struct {
	record T
	found  bool
}

// New builds a facade for one entity type on top of a shared engine.
func New[T any](engine *cache.Engine, repo Repository[T], opts ...ModelOption) *CachedModel[T] {
	cfg := modelConfig{
		entity:       entityNameOf[T](),
		defaultTTL:   engine.Config().DefaultTTL,
		aggregateTTL: engine.Config().AggregateTTL,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CachedModel[T]{
		engine:       engine,
		repo:         repo,
		codec:        engine.Codec(),
		entity:       cfg.entity,
		defaultTTL:   cfg.defaultTTL,
		aggregateTTL: cfg.aggregateTTL,
		log:          cfg.logger.With(zap.String("component", "cache.model"), zap.String("entity", cfg.entity)),
	}
}

// Entity reports the name this facade caches under.
func (m *CachedModel[T]) Entity() string {
	return m.entity
}

// GetOne resolves a single record by descriptor. A confirmed absence is
// cached as a negative entry, so repeated lookups for a missing row return
// (zero, false, nil) without touching the repository until the entry
// expires. Concurrent identical misses coalesce into one repository call.
func (m *CachedModel[T]) GetOne(ctx context.Context, q cache.Query, opts ...CallOption) (T, bool, error) {
	var zero T
	if q.Empty() {
		return zero, false, cache.ErrEmptyQuery
	}
	call := newCallOptions(opts)
	if call.noCache {
		return m.repo.FindOne(ctx, q)
	}

	key := m.codec.Key(m.entity, q)
	if ent, ok := m.engine.Lookup(ctx, key); ok {
		switch ent.Kind {
		case cache.EntryNegative:
			return zero, false, nil
		case cache.EntryRecord:
			rec, err := m.repo.Hydrate(ent.Record)
			if err == nil {
				return rec, true, nil
			}
			m.log.Warn("hydration failed, refetching", zap.String("key", key), zap.Error(err))
		}
		// Wrong entry kind decodes as a miss.
	}

	res, err, _ := m.flight.Do(key, func() (any, error) {
		// The fetch outlives any single caller: later coalesced waiters and
		// future readers depend on the write-back, so it is never canceled
		// by the owning request's abort.
		fctx := context.WithoutCancel(ctx)
		rec, found, err := m.repo.FindOne(fctx, q)
		if err != nil {
			return nil, err
		}
		if ent, tags, ok := m.entryForRecord(fctx, rec, found); ok {
			m.engine.Put(fctx, key, ent, call.ttlOr(m.defaultTTL), tags)
		}
		return pointResult[T]{record: rec, found: found}, nil
	})
	if err != nil {
		return zero, false, err
	}
	r := res.(pointResult[T])
	return r.record, r.found, nil
}

// GetMany resolves an ordered list of records by descriptor, with the same
// coalescing and tagging discipline as GetOne.
func (m *CachedModel[T]) GetMany(ctx context.Context, q cache.Query, opts ...CallOption) ([]T, error) {
	if q.Empty() {
		return nil, cache.ErrEmptyQuery
	}
	call := newCallOptions(opts)
	if call.noCache {
		return m.repo.FindMany(ctx, q)
	}

	key := m.codec.ScopedKey(m.entity, scopeMany, q)
	if ent, ok := m.engine.Lookup(ctx, key); ok && ent.Kind == cache.EntryRecordList {
		records, err := m.hydrateList(ent.Records)
		if err == nil {
			return records, nil
		}
		m.log.Warn("hydration failed, refetching", zap.String("key", key), zap.Error(err))
	}

	res, err, _ := m.flight.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		records, err := m.repo.FindMany(fctx, q)
		if err != nil {
			return nil, err
		}
		if ent, tags, ok := m.entryForList(fctx, records); ok {
			m.engine.Put(fctx, key, ent, call.ttlOr(m.defaultTTL), tags)
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]T), nil
}

// FindOrCreate returns the cached or stored record for the criteria, or
// atomically creates one from the defaults. The boolean reports creation; a
// cache hit is never a creation.
func (m *CachedModel[T]) FindOrCreate(ctx context.Context, q cache.Query, defaults map[string]any, opts ...CallOption) (T, bool, error) {
	var zero T
	if q.Empty() {
		return zero, false, ErrNoCriteria
	}
	call := newCallOptions(opts)
	if call.noCache {
		return m.repo.FindOrCreate(ctx, q, defaults)
	}

	key := m.codec.Key(m.entity, q)
	if ent, ok := m.engine.Lookup(ctx, key); ok && ent.Kind == cache.EntryRecord {
		// A negative hit falls through: the record must be created.
		rec, err := m.repo.Hydrate(ent.Record)
		if err == nil {
			return rec, false, nil
		}
		m.log.Warn("hydration failed, refetching", zap.String("key", key), zap.Error(err))
	}

	rec, created, err := m.repo.FindOrCreate(ctx, q, defaults)
	if err != nil {
		return zero, false, err
	}
	if created {
		// The new row changes list and aggregate results.
		m.engine.InvalidateTags(ctx, m.entity, []string{EntityTag(m.entity)})
	}
	if ent, tags, ok := m.entryForRecord(ctx, rec, true); ok {
		m.engine.Put(ctx, key, ent, call.ttlOr(m.defaultTTL), tags)
	}
	return rec, created, nil
}

// Count resolves a row count with its own, shorter TTL: aggregates are cheap
// to recompute but change more often.
func (m *CachedModel[T]) Count(ctx context.Context, q cache.Query, opts ...CallOption) (int64, error) {
	if q.Empty() {
		return 0, cache.ErrEmptyQuery
	}
	call := newCallOptions(opts)
	if call.noCache {
		return m.repo.Count(ctx, q)
	}

	key := m.codec.ScopedKey(m.entity, scopeCount, q)
	if ent, ok := m.engine.Lookup(ctx, key); ok && ent.Kind == cache.EntryScalar {
		return int64(ent.Scalar), nil
	}

	res, err, _ := m.flight.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		n, err := m.repo.Count(fctx, q)
		if err != nil {
			return nil, err
		}
		tags := m.scalarTags(fctx)
		m.engine.Put(fctx, key, cache.ScalarEntry(float64(n)), call.ttlOr(m.aggregateTTL), tags)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Aggregate resolves fn(field) over the matching rows, cached like Count.
func (m *CachedModel[T]) Aggregate(ctx context.Context, fn, field string, q cache.Query, opts ...CallOption) (float64, error) {
	if q.Empty() {
		return 0, cache.ErrEmptyQuery
	}
	call := newCallOptions(opts)
	if call.noCache {
		return m.repo.Aggregate(ctx, fn, field, q)
	}

	key := m.codec.ScopedKey(m.entity, scopeAgg+":"+fn+":"+field, q)
	if ent, ok := m.engine.Lookup(ctx, key); ok && ent.Kind == cache.EntryScalar {
		return ent.Scalar, nil
	}

	res, err, _ := m.flight.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		v, err := m.repo.Aggregate(fctx, fn, field, q)
		if err != nil {
			return nil, err
		}
		tags := m.scalarTags(fctx)
		m.engine.Put(fctx, key, cache.ScalarEntry(v), call.ttlOr(m.aggregateTTL), tags)
		return v, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

// Invalidate removes the cached entries for one descriptor: its point,
// list, and count keys, routed to whichever backend is active. Aggregate
// keys embed their function and field and cannot be enumerated from the
// descriptor alone; cached aggregates stay until a write's entity-tag
// invalidation or TTL expiry clears them.
func (m *CachedModel[T]) Invalidate(ctx context.Context, q cache.Query) error {
	if q.Empty() {
		return cache.ErrEmptyQuery
	}
	m.engine.Remove(ctx,
		m.codec.Key(m.entity, q),
		m.codec.ScopedKey(m.entity, scopeMany, q),
		m.codec.ScopedKey(m.entity, scopeCount, q),
	)
	return nil
}

// InvalidateKey removes a single explicit cache key.
func (m *CachedModel[T]) InvalidateKey(ctx context.Context, key string) {
	m.engine.Remove(ctx, key)
}

// InvalidateTags removes every entry registered under the given tags.
func (m *CachedModel[T]) InvalidateTags(ctx context.Context, tags ...string) {
	m.engine.InvalidateTags(ctx, m.entity, tags)
}

// SaveAndRefresh persists the record, invalidates by tag, and then
// re-populates the identity-key entry with fresh data when a cache backend
// is available, so the very next read after a write is a hit.
func (m *CachedModel[T]) SaveAndRefresh(ctx context.Context, record T) (T, error) {
	saved, err := m.repo.Update(ctx, record)
	if err != nil {
		var zero T
		return zero, err
	}
	m.afterWrite(ctx, saved)

	pkv, ok := m.repo.PrimaryKeyValue(saved)
	if !ok {
		return saved, nil
	}
	payload, serr := m.repo.Serialize(saved)
	if serr != nil {
		m.log.Warn("serialization failed, skipping refresh", zap.Error(serr))
		return saved, nil
	}
	pk := m.repo.PrimaryKey()
	key := m.codec.Key(m.entity, cache.Query{pk: pkv})
	tags := []string{EntityTag(m.entity), IdentityTag(m.entity, pk, pkv)}
	m.engine.Put(ctx, key, cache.RecordEntry(payload), m.defaultTTL, tags)
	return saved, nil
}

// entryForRecord builds the entry and tag set for a point result. A
// serialization failure logs and skips the cache write without failing the
// caller's read.
func (m *CachedModel[T]) entryForRecord(ctx context.Context, record T, found bool) (cache.Entry, []string, bool) {
	tags := append([]string{EntityTag(m.entity)}, cacheTagsFromContext(ctx)...)
	if !found {
		return cache.NegativeEntry(), dedupeStrings(tags), true
	}
	payload, err := m.repo.Serialize(record)
	if err != nil {
		m.log.Warn("serialization failed, skipping cache write", zap.Error(err))
		return cache.Entry{}, nil, false
	}
	if pkv, ok := m.repo.PrimaryKeyValue(record); ok {
		tags = append(tags, IdentityTag(m.entity, m.repo.PrimaryKey(), pkv))
	}
	return cache.RecordEntry(payload), dedupeStrings(tags), true
}

// entryForList builds the entry and tag set for a list result, tagging with
// every contained identity so a write to any member invalidates the list.
func (m *CachedModel[T]) entryForList(ctx context.Context, records []T) (cache.Entry, []string, bool) {
	tags := append([]string{EntityTag(m.entity)}, cacheTagsFromContext(ctx)...)
	payloads := make([]map[string]any, len(records))
	for i, rec := range records {
		payload, err := m.repo.Serialize(rec)
		if err != nil {
			m.log.Warn("serialization failed, skipping cache write", zap.Error(err))
			return cache.Entry{}, nil, false
		}
		payloads[i] = payload
		if pkv, ok := m.repo.PrimaryKeyValue(rec); ok {
			tags = append(tags, IdentityTag(m.entity, m.repo.PrimaryKey(), pkv))
		}
	}
	return cache.RecordListEntry(payloads), dedupeStrings(tags), true
}

func (m *CachedModel[T]) scalarTags(ctx context.Context) []string {
	return dedupeStrings(append([]string{EntityTag(m.entity)}, cacheTagsFromContext(ctx)...))
}

func (m *CachedModel[T]) hydrateList(payloads []map[string]any) ([]T, error) {
	records := make([]T, len(payloads))
	for i, payload := range payloads {
		rec, err := m.repo.Hydrate(payload)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}
