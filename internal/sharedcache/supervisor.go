// Package sharedcache owns the shared Redis backend: the connection
// supervisor (failover list, sliding error window, scheduled reconnect,
// strict/hybrid switch) and the tagged entry store built on atomic
// pipelines.
package sharedcache

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// State mirrors the engine's connection states. The supervisor is the only
// component allowed to mutate it.
type State string

const (
	StateConnected            State = "connected"
	StateDisconnectedFallback State = "disconnected-fallback"
	StateDisconnectedStrict   State = "disconnected-strict"
)

// scanBatch bounds SCAN page size and DEL batch size during namespace flush.
const scanBatch = 500

// Config carries the supervisor's tunables.
type Config struct {
	// Endpoints is the ordered failover list; at least one entry.
	Endpoints []string
	Password  string
	DB        int

	// Strict forbids the fallback state: on sustained outage the supervisor
	// goes straight to disconnected-strict.
	Strict bool

	// Namespace is the key prefix owned by this engine. It is flushed once
	// after any reconnection that follows a failover, because a different
	// backend instance cannot be assumed to hold data consistent with what
	// siblings cached under the old one.
	Namespace string

	// ErrorThreshold errors within ErrorWindow count as a sustained outage.
	ErrorThreshold int
	ErrorWindow    time.Duration

	// ReconnectDelay arms the single reconnect timer once every endpoint is
	// exhausted, measured from the last reconnect attempt.
	ReconnectDelay time.Duration

	DialTimeout time.Duration
}

// Supervisor owns the lifecycle of the shared cache connection: endpoint
// failover, error tolerance, scheduled reconnection, and the stale-cache
// flush on failover.
//
// The mutex guards in-memory state only. Dialing, pinging, and flushing all
// happen with the mutex released: an outage flips the state to disconnected
// before any recovery I/O starts, so State and Client answer immediately
// and readers degrade instead of queueing behind a dial.
type Supervisor struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	client   *redis.Client
	state    State
	current  int
	failed   map[int]struct{}
	errTimes []time.Time
	// reconnecting is set while a recovery attempt is in flight; errors
	// reported during that window are dropped.
	reconnecting   bool
	lastAttempt    time.Time
	reconnectTimer *time.Timer
	closed         bool
}

// NewSupervisor creates a supervisor in the disconnected state appropriate
// for its mode. Call Start to attempt the first connection.
func NewSupervisor(cfg Config, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:    cfg,
		log:    logger.With(zap.String("component", "cache.supervisor")),
		state:  disconnectedState(cfg.Strict),
		failed: make(map[int]struct{}),
	}
}

// Start performs the initial connection attempt. A failed initial connection
// is not an error: the supervisor starts disconnected with a logged warning
// and the reconnect timer armed.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("sharedcache: supervisor is closed")
	}
	s.lastAttempt = time.Now()
	endpoint := s.cfg.Endpoints[s.current]
	s.mu.Unlock()

	client, err := s.dial(ctx, endpoint, false)
	if err != nil {
		s.log.Warn("initial shared cache connection failed, caching unavailable",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		s.mu.Lock()
		if !s.closed {
			s.beginOutageLocked()
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return client.Close()
	}
	s.client = client
	s.state = StateConnected
	s.mu.Unlock()
	s.log.Info("shared cache connected", zap.String("endpoint", endpoint))
	return nil
}

// Stop tears down the connection and disarms the reconnect timer.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.state = disconnectedState(s.cfg.Strict)
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// State reports the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the active client, or nil unless connected.
func (s *Supervisor) Client() *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return s.client
}

// Endpoint reports the address currently in use.
func (s *Supervisor) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Endpoints[s.current]
}

// ReportError records an operational error from the shared backend. A
// dropped connection acts immediately; other errors accumulate in the
// sliding window and only a sustained burst triggers failover. Single
// transient errors never flip the state, and errors reported while a
// recovery attempt is already running are dropped.
func (s *Supervisor) ReportError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.reconnecting || s.state != StateConnected {
		return
	}

	if isConnectionDropped(err) {
		s.log.Warn("shared cache connection dropped", zap.Error(err))
		s.beginOutageLocked()
		return
	}

	now := time.Now()
	s.errTimes = append(s.errTimes, now)
	s.pruneWindowLocked(now)
	if len(s.errTimes) >= s.cfg.ErrorThreshold {
		s.log.Warn("shared cache error tolerance exceeded",
			zap.Int("errors", len(s.errTimes)),
			zap.Duration("window", s.cfg.ErrorWindow))
		s.beginOutageLocked()
		return
	}
	s.log.Debug("transient shared cache error", zap.Error(err))
}

// beginOutageLocked reacts to a sustained outage: the state flips to
// disconnected at once so readers degrade to the active fallback, and the
// endpoint walk is handed to a background worker. The error window is
// cleared on every flip decision, including when the failover succeeds.
func (s *Supervisor) beginOutageLocked() {
	s.errTimes = nil
	s.failed[s.current] = struct{}{}
	s.state = disconnectedState(s.cfg.Strict)
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.reconnecting = true
	go s.failover()
}

// failover walks the untried endpoints. Each dial runs with the mutex
// released; the first endpoint that answers is flushed and committed.
func (s *Supervisor) failover() {
	ctx := context.Background()
	for {
		s.mu.Lock()
		if s.closed {
			s.reconnecting = false
			s.mu.Unlock()
			return
		}
		next, ok := s.nextUntriedLocked()
		if !ok {
			s.reconnecting = false
			s.log.Warn("all shared cache endpoints exhausted",
				zap.String("state", string(s.state)),
				zap.Duration("retry_in", s.cfg.ReconnectDelay))
			s.scheduleReconnectLocked()
			s.mu.Unlock()
			return
		}
		s.current = next
		s.lastAttempt = time.Now()
		endpoint := s.cfg.Endpoints[next]
		s.mu.Unlock()

		client, err := s.dial(ctx, endpoint, true)
		if err != nil {
			s.mu.Lock()
			s.failed[next] = struct{}{}
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = client.Close()
			return
		}
		s.client = client
		s.state = StateConnected
		s.reconnecting = false
		s.mu.Unlock()
		s.log.Info("failed over to next shared cache endpoint", zap.String("endpoint", endpoint))
		return
	}
}

// dial connects and pings the endpoint, flushing the namespace on the new
// client when asked. It performs network I/O and must be called without
// holding the mutex.
func (s *Supervisor) dial(ctx context.Context, endpoint string, flush bool) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        endpoint,
		Password:    s.cfg.Password,
		DB:          s.cfg.DB,
		DialTimeout: s.cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if flush {
		if err := s.flushNamespace(ctx, client); err != nil {
			s.log.Warn("post-failover namespace flush failed", zap.Error(err))
		}
	}
	return client, nil
}

// flushNamespace deletes every key under this engine's namespace. A freshly
// failed-over instance may hold data cached under the old instance; serving
// possibly-wrong cross-instance data is worse than cold misses.
func (s *Supervisor) flushNamespace(ctx context.Context, client *redis.Client) error {
	iter := client.Scan(ctx, 0, s.cfg.Namespace+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return client.Del(ctx, batch...).Err()
	}
	return nil
}

// scheduleReconnectLocked arms the single reconnect timer for the configured
// delay from the last attempt, preventing reconnect storms during bursts.
func (s *Supervisor) scheduleReconnectLocked() {
	if s.closed {
		return
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	delay := s.cfg.ReconnectDelay - time.Since(s.lastAttempt)
	if delay < 0 {
		delay = 0
	}
	s.reconnectTimer = time.AfterFunc(delay, s.reconnect)
}

// reconnect fires from the scheduled timer: reset the failed set, return to
// the first endpoint, and retry. The dial runs with the mutex released.
func (s *Supervisor) reconnect() {
	s.mu.Lock()
	if s.closed || s.reconnecting || s.state == StateConnected {
		s.mu.Unlock()
		return
	}
	s.failed = make(map[int]struct{})
	s.current = 0
	s.lastAttempt = time.Now()
	endpoint := s.cfg.Endpoints[0]
	s.reconnecting = true
	s.mu.Unlock()

	client, err := s.dial(context.Background(), endpoint, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnecting = false
	if s.closed {
		if client != nil {
			_ = client.Close()
		}
		return
	}
	if err != nil {
		s.log.Warn("scheduled reconnect failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		s.scheduleReconnectLocked()
		return
	}
	s.client = client
	s.state = StateConnected
	s.log.Info("shared cache connected", zap.String("endpoint", endpoint))
}

// nextUntriedLocked finds the next endpoint index, after the current one in
// list order, that has not yet failed.
func (s *Supervisor) nextUntriedLocked() (int, bool) {
	n := len(s.cfg.Endpoints)
	for i := 1; i <= n; i++ {
		idx := (s.current + i) % n
		if _, bad := s.failed[idx]; !bad {
			return idx, true
		}
	}
	return 0, false
}

func (s *Supervisor) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-s.cfg.ErrorWindow)
	kept := s.errTimes[:0]
	for _, t := range s.errTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.errTimes = kept
}

func disconnectedState(strict bool) State {
	if strict {
		return StateDisconnectedStrict
	}
	return StateDisconnectedFallback
}

// isConnectionDropped classifies errors that signal a closed or dropped
// connection, which trigger the outage path immediately instead of counting
// toward the tolerance window.
func isConnectionDropped(err error) bool {
	return errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}
