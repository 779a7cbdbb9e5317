package modelcache

import (
	"context"
	"errors"

	"github.com/kenndeclouv/kythia-cache/cache"
)

// ErrNoCriteria rejects a find-or-create without any identifying criteria.
// Like an empty query, this is a programmer error and is returned to the
// caller instead of being swallowed.
var ErrNoCriteria = errors.New("modelcache: find-or-create requires criteria")

// Repository is the relational collaborator a CachedModel fronts. Query
// execution, schema, and transactions live behind it; the cache engine only
// needs lookups by descriptor, writes, a stable primary key accessor, and a
// way to move records to and from plain serializable payloads.
//
// Hydrate is the inverse of Serialize: cache hits hand the stored payload
// back to the repository for reconstruction, keeping the engine free of any
// ORM-specific logic.
type Repository[T any] interface {
	FindOne(ctx context.Context, q cache.Query) (T, bool, error)
	FindMany(ctx context.Context, q cache.Query) ([]T, error)
	FindOrCreate(ctx context.Context, q cache.Query, defaults map[string]any) (T, bool, error)
	Count(ctx context.Context, q cache.Query) (int64, error)
	Aggregate(ctx context.Context, fn, field string, q cache.Query) (float64, error)

	Create(ctx context.Context, record T) (T, error)
	CreateMany(ctx context.Context, records []T) ([]T, error)
	Update(ctx context.Context, record T) (T, error)
	UpdateWhere(ctx context.Context, q cache.Query, values map[string]any) (int64, error)
	Delete(ctx context.Context, record T) error
	DeleteWhere(ctx context.Context, q cache.Query) (int64, error)

	// PrimaryKey names the primary key field. PrimaryKeyValue extracts it
	// from a record; the boolean is false when the record has no resolvable
	// identity (e.g. not yet persisted).
	PrimaryKey() string
	PrimaryKeyValue(record T) (any, bool)

	Serialize(record T) (map[string]any, error)
	Hydrate(payload map[string]any) (T, error)
}
