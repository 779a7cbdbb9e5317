// Package cache implements the hybrid cache/consistency engine: the
// component that decides, per query, whether a lookup is served by the
// shared Redis backend, the in-process fallback store, or nothing at all,
// and that keeps those caches coherent under write traffic and partial
// outages.
//
// # Architecture
//
// The engine composes three pieces:
//
//   - KeyCodec: deterministic, order-independent serialization of a query
//     descriptor into a cache key of the form {version}:{entity}:{json}.
//   - A shared Redis backend (internal/sharedcache) with tag reverse
//     indices, an endpoint failover list, sliding-window error tolerance,
//     and a scheduled reconnect timer.
//   - A bounded local fallback store (internal/localcache) used only
//     outside strict mode, with explicit negative-entry tracking.
//
// Construct one Engine per process with NewEngine, call Start, and inject
// it into per-entity facades (see the modelcache package). The engine never
// surfaces backend failures to readers: every cache-subsystem error
// degrades to a miss or a skipped write, with a counter and a log line.
//
// # Strict mode
//
// Strict mode represents sharded deployments where multiple processes share
// authoritative state through the backend only. When the backend is down,
// strict mode disables caching entirely rather than risking node-local
// divergence; non-strict deployments fall back to the local store.
//
// # Keys and epochs
//
// Every key embeds the configured cache version. Bumping the version after
// a schema change is a global epoch bust: all old entries become
// unreachable without explicit deletion and expire by TTL.
package cache
