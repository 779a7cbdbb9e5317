package modelcache

import (
	"context"
	"fmt"
)

// EntityTag is attached to every entry of an entity. It covers list and
// aggregate queries that cannot be tagged by a single identity, so entity-
// wide invalidation is deliberately broad: over-invalidation is safe,
// under-invalidation is not.
func EntityTag(entity string) string {
	return entity
}

// IdentityTag names one record: {Entity}:{pkField}:{pkValue}. A write to a
// known record invalidates every query result ever tagged with it.
func IdentityTag(entity, pkField string, pkValue any) string {
	return fmt.Sprintf("%s:%s:%v", entity, pkField, pkValue)
}

type cacheTagsContextKey struct{}

// WithCacheTags attaches additional invalidation tags to the context. Reads
// performed under this context register their cache entries with the extra
// tags, so a later InvalidateTags on them clears those entries too.
func WithCacheTags(ctx context.Context, tags ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}
	combined := dedupeStrings(append(cacheTagsFromContext(ctx), tags...))
	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

func cacheTagsFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]string); ok {
		return append([]string(nil), tags...)
	}
	return nil
}

func dedupeStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
