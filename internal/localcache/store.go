// Package localcache implements the bounded in-process fallback store used
// when the shared backend is unreachable outside strict mode. It is built on
// sturdyc for sharded storage and capacity-based eviction; per-entry TTLs are
// enforced at read time.
package localcache

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/viccon/sturdyc"
)

// maxClientTTL is the sturdyc client-level TTL. It only needs to outlive any
// per-entry deadline; expiry is checked against item.expiresAt on every read.
const maxClientTTL = 24 * time.Hour

// item wraps a stored value with its deadline and the negative marker. A
// negative item records "confirmed absent", which is distinct from the key
// not being present at all.
type item struct {
	value     any
	negative  bool
	expiresAt time.Time
}

// Config tunes the underlying sturdyc client.
type Config struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
}

// Store is a bounded in-process cache with explicit negative-entry tracking.
// All methods are safe for concurrent use.
type Store struct {
	client   *sturdyc.Client[item]
	disabled atomic.Bool
}

// New creates a store with the given capacity bounds.
func New(cfg Config) *Store {
	return &Store{
		client: sturdyc.New[item](cfg.Capacity, cfg.NumShards, maxClientTTL, cfg.EvictionPercentage),
	}
}

// SetDisabled flips the defensive disable flag. A disabled store ignores
// writes and reports every read as a miss. The engine gates strict mode
// centrally; this is the second layer.
func (s *Store) SetDisabled(disabled bool) {
	s.disabled.Store(disabled)
}

// Disabled reports whether the store is disabled.
func (s *Store) Disabled() bool {
	return s.disabled.Load()
}

// Set stores a value under key for ttl. A nil value is stored as the
// negative marker.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if s.disabled.Load() {
		return
	}
	s.client.Set(key, item{
		value:     value,
		negative:  value == nil,
		expiresAt: time.Now().Add(ttl),
	})
}

// Get returns the value stored under key. A hit on a negative marker returns
// (nil, true). An expired-but-not-yet-evicted entry behaves as a miss and is
// evicted opportunistically.
func (s *Store) Get(key string) (any, bool) {
	if s.disabled.Load() {
		return nil, false
	}
	it, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		s.client.Delete(key)
		return nil, false
	}
	if it.negative {
		return nil, true
	}
	return it.value, true
}

// Delete removes a single entry.
func (s *Store) Delete(key string) {
	if s.disabled.Load() {
		return
	}
	s.client.Delete(key)
}

// ClearPrefix removes every entry whose key starts with prefix. Tag-based
// invalidation is not implemented locally; callers clear a whole entity
// partition instead.
func (s *Store) ClearPrefix(prefix string) {
	if s.disabled.Load() {
		return
	}
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
}

// Clear removes every entry.
func (s *Store) Clear() {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
}

// Size reports the number of stored entries, expired or not.
func (s *Store) Size() int {
	return s.client.Size()
}
