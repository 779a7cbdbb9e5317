package sharedcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when the supervisor has no healthy client.
// Callers treat it like any other transient backend error and fall back.
var ErrNotConnected = errors.New("sharedcache: shared backend not connected")

// Store reads and writes tagged cache entries against whichever client the
// supervisor currently holds. Every write maintains the reverse tag indices
// atomically so a single invalidation can delete an unbounded number of
// derived query results.
type Store struct {
	sup       *Supervisor
	namespace string
	log       *zap.Logger
}

// NewStore binds a store to the supervisor's connection. The namespace must
// match the supervisor's flush namespace.
func NewStore(sup *Supervisor, namespace string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sup:       sup,
		namespace: namespace,
		log:       logger.With(zap.String("component", "cache.shared")),
	}
}

// tagKey places tag sets inside the engine namespace so the post-failover
// flush covers them too.
func (s *Store) tagKey(tag string) string {
	return s.namespace + "tag:" + tag
}

// Get fetches the payload stored under key. The boolean reports presence;
// redis.Nil is a plain miss, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	client := s.sup.Client()
	if client == nil {
		return nil, false, ErrNotConnected
	}
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		s.sup.ReportError(err)
		return nil, false, err
	}
	return data, true, nil
}

// Set writes the payload with its TTL and registers the key under every tag,
// in a single MULTI/EXEC transaction.
func (s *Store) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, tags []string) error {
	client := s.sup.Client()
	if client == nil {
		return ErrNotConnected
	}
	pipe := client.TxPipeline()
	pipe.Set(ctx, key, payload, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, s.tagKey(tag), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.sup.ReportError(err)
		return err
	}
	return nil
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	client := s.sup.Client()
	if client == nil {
		return ErrNotConnected
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		s.sup.ReportError(err)
		return err
	}
	return nil
}

// InvalidateTags deletes every key registered under any of the given tags,
// plus the tag sets themselves. The tag sets are deleted even when the union
// is empty.
func (s *Store) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	client := s.sup.Client()
	if client == nil {
		return ErrNotConnected
	}

	tagKeys := make([]string, len(tags))
	for i, tag := range tags {
		tagKeys[i] = s.tagKey(tag)
	}

	keys, err := client.SUnion(ctx, tagKeys...).Result()
	if err != nil {
		s.sup.ReportError(err)
		return err
	}

	pipe := client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, tagKeys...)
	if _, err := pipe.Exec(ctx); err != nil {
		s.sup.ReportError(err)
		return err
	}
	return nil
}
