package modelcache

import (
	"context"

	"github.com/kenndeclouv/kythia-cache/cache"
)

// Write operations pass through to the repository first; invalidation is
// attempted before the call returns so a writer never observes its own
// stale cache. Other concurrent readers may still race a short window
// before the invalidation lands.

// Create inserts a record and invalidates its identity and entity tags.
func (m *CachedModel[T]) Create(ctx context.Context, record T) (T, error) {
	created, err := m.repo.Create(ctx, record)
	if err != nil {
		var zero T
		return zero, err
	}
	m.afterWrite(ctx, created)
	return created, nil
}

// CreateMany inserts records and invalidates every resolvable identity plus
// the entity tag.
func (m *CachedModel[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	created, err := m.repo.CreateMany(ctx, records)
	if err != nil {
		return nil, err
	}
	m.afterWrite(ctx, created...)
	return created, nil
}

// Update persists a record and invalidates its identity and entity tags.
// Use SaveAndRefresh to additionally re-populate the identity entry.
func (m *CachedModel[T]) Update(ctx context.Context, record T) (T, error) {
	updated, err := m.repo.Update(ctx, record)
	if err != nil {
		var zero T
		return zero, err
	}
	m.afterWrite(ctx, updated)
	return updated, nil
}

// UpdateWhere bulk-updates by criteria. Without individual identities only
// the entity-wide tag is invalidated.
func (m *CachedModel[T]) UpdateWhere(ctx context.Context, q cache.Query, values map[string]any) (int64, error) {
	n, err := m.repo.UpdateWhere(ctx, q, values)
	if err != nil {
		return 0, err
	}
	m.afterWrite(ctx)
	return n, nil
}

// Delete destroys a record and invalidates its identity and entity tags.
func (m *CachedModel[T]) Delete(ctx context.Context, record T) error {
	if err := m.repo.Delete(ctx, record); err != nil {
		return err
	}
	m.afterWrite(ctx, record)
	return nil
}

// DeleteWhere bulk-destroys by criteria, invalidating the entity-wide tag.
func (m *CachedModel[T]) DeleteWhere(ctx context.Context, q cache.Query) (int64, error) {
	n, err := m.repo.DeleteWhere(ctx, q)
	if err != nil {
		return 0, err
	}
	m.afterWrite(ctx)
	return n, nil
}

// afterWrite computes the invalidation tag set for the mutated records (the
// entity tag always, an identity tag per record with a resolvable primary
// key) and routes it through the engine: tag invalidation on the shared
// backend, whole-partition clearing on the local fallback.
func (m *CachedModel[T]) afterWrite(ctx context.Context, records ...T) {
	tags := []string{EntityTag(m.entity)}
	pk := m.repo.PrimaryKey()
	for _, rec := range records {
		if pkv, ok := m.repo.PrimaryKeyValue(rec); ok {
			tags = append(tags, IdentityTag(m.entity, pk, pkv))
		}
	}
	m.engine.InvalidateTags(ctx, m.entity, dedupeStrings(tags))
}
