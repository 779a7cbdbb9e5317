// Package modelcache provides the public per-entity cache facade.
//
// A CachedModel[T] fronts one Repository[T] with read-through caching:
//
//	engine, _ := cache.NewEngine(cache.DefaultConfig(), logger)
//	_ = engine.Start(ctx)
//	accounts := modelcache.New[Account](engine, accountRepo)
//
//	acct, found, err := accounts.GetOne(ctx, cache.Where("userId", 5))
//
// Reads (GetOne, GetMany, Count, Aggregate, FindOrCreate) are keyed by the
// canonical form of their descriptor and coalesced: N concurrent identical
// misses result in exactly one repository call. Confirmed absences are
// cached as negative entries. Writes (Create, Update, Delete, the bulk and
// criteria variants, SaveAndRefresh) pass through to the repository and
// then invalidate by tag: the entity tag always, plus an identity tag per
// record with a resolvable primary key.
//
// Cache payloads are plain serialized data; on a hit the payload is handed
// back to the repository's Hydrate for reconstruction, keeping this package
// free of ORM-specific logic.
//
// Per-call behavior is tuned with CallOptions (NoCache, WithTTL) and extra
// invalidation tags can be attached to a context with WithCacheTags.
package modelcache
