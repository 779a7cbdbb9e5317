package sharedcache

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func supervisorConfig(strict bool, endpoints ...string) Config {
	return Config{
		Endpoints:      endpoints,
		Strict:         strict,
		Namespace:      "v1:",
		ErrorThreshold: 3,
		ErrorWindow:    10 * time.Second,
		ReconnectDelay: 100 * time.Millisecond,
		DialTimeout:    200 * time.Millisecond,
	}
}

func startSupervisor(t *testing.T, cfg Config) *Supervisor {
	t.Helper()
	sup := NewSupervisor(cfg, nil)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = sup.Stop() })
	return sup
}

func testSupervisor(t *testing.T, strict bool, endpoints ...string) *Supervisor {
	t.Helper()
	return startSupervisor(t, supervisorConfig(strict, endpoints...))
}

func reportN(sup *Supervisor, n int) {
	for i := 0; i < n; i++ {
		sup.ReportError(errors.New("operational error"))
	}
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitForEndpoint(t *testing.T, sup *Supervisor, endpoint string) {
	t.Helper()
	waitFor(t, "supervisor never connected to "+endpoint, func() bool {
		return sup.State() == StateConnected && sup.Endpoint() == endpoint
	})
}

func TestSupervisor_InitialConnectDoesNotFlush(t *testing.T) {
	mr := miniredis.RunT(t)
	if err := mr.Set("v1:Account:warm", "x"); err != nil {
		t.Fatal(err)
	}

	sup := testSupervisor(t, false, mr.Addr())

	if sup.State() != StateConnected {
		t.Fatalf("state = %v, want connected", sup.State())
	}
	if !mr.Exists("v1:Account:warm") {
		t.Fatal("initial connection must not flush the namespace")
	}
}

func TestSupervisor_TransientErrorsBelowThresholdDoNotFlip(t *testing.T) {
	mr := miniredis.RunT(t)
	sup := testSupervisor(t, false, mr.Addr())

	reportN(sup, 2)
	if sup.State() != StateConnected {
		t.Fatalf("state flipped on %d errors, threshold is 3", 2)
	}
}

func TestSupervisor_FailoverFlushesNewInstance(t *testing.T) {
	mr1 := miniredis.RunT(t)
	mr2 := miniredis.RunT(t)
	// The second instance holds data cached under a previous life; it must
	// be flushed before serving. Keys outside the namespace survive.
	if err := mr2.Set("v1:Account:stale", "x"); err != nil {
		t.Fatal(err)
	}
	if err := mr2.Set("cotenant", "y"); err != nil {
		t.Fatal(err)
	}

	sup := testSupervisor(t, false, mr1.Addr(), mr2.Addr())
	if sup.Endpoint() != mr1.Addr() {
		t.Fatalf("Endpoint = %q, want first endpoint", sup.Endpoint())
	}

	reportN(sup, 3)
	waitForEndpoint(t, sup, mr2.Addr())

	if mr2.Exists("v1:Account:stale") {
		t.Error("namespace was not flushed after failover")
	}
	if !mr2.Exists("cotenant") {
		t.Error("flush must not touch keys outside the namespace")
	}
}

// Pins the inherited behavior: the error window is cleared on every flip
// decision, including a successful failover. A fresh burst must therefore
// re-reach the full threshold before the next flip.
func TestSupervisor_WindowClearedAfterSuccessfulFailover(t *testing.T) {
	mr1 := miniredis.RunT(t)
	mr2 := miniredis.RunT(t)
	sup := testSupervisor(t, false, mr1.Addr(), mr2.Addr())

	reportN(sup, 3)
	waitForEndpoint(t, sup, mr2.Addr())

	reportN(sup, 2)
	if sup.State() != StateConnected {
		t.Fatal("window must restart after a flip; two errors cannot flip again")
	}
}

func TestSupervisor_ExhaustionFallsBackAndReconnects(t *testing.T) {
	mr1 := miniredis.RunT(t)
	mr2 := miniredis.RunT(t)
	sup := testSupervisor(t, false, mr1.Addr(), mr2.Addr())

	reportN(sup, 3) // endpoint #1 -> #2
	waitForEndpoint(t, sup, mr2.Addr())

	reportN(sup, 3) // endpoint #2, no endpoints remain
	if sup.State() == StateConnected {
		t.Fatal("state must flip before any recovery dial completes")
	}

	// The scheduled reconnect resets the failed set and returns to the
	// first endpoint.
	waitForEndpoint(t, sup, mr1.Addr())
}

// Pins the timer's lower bound: after an outage the retry fires no sooner
// than ReconnectDelay from the last attempt, even when the endpoint is
// already healthy again.
func TestSupervisor_ReconnectWaitsConfiguredDelay(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := supervisorConfig(false, mr.Addr())
	cfg.ReconnectDelay = 400 * time.Millisecond
	started := time.Now()
	sup := startSupervisor(t, cfg)

	mr.Close()
	sup.ReportError(io.EOF)
	if sup.State() != StateDisconnectedFallback {
		t.Fatalf("state = %v, want disconnected-fallback", sup.State())
	}
	if err := mr.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	for time.Since(started) < 300*time.Millisecond {
		if sup.State() == StateConnected {
			t.Fatal("reconnected before the configured delay elapsed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, "supervisor never reconnected after the delay", func() bool {
		return sup.State() == StateConnected
	})
}

func TestSupervisor_StrictNeverFallsBack(t *testing.T) {
	sup := testSupervisor(t, true, "127.0.0.1:1")

	if sup.State() != StateDisconnectedStrict {
		t.Fatalf("state = %v, want disconnected-strict", sup.State())
	}
	if sup.Client() != nil {
		t.Fatal("no client may be handed out while disconnected")
	}
}

func TestSupervisor_FailedInitialConnectStartsDisconnected(t *testing.T) {
	sup := testSupervisor(t, false, "127.0.0.1:1")

	if sup.State() != StateDisconnectedFallback {
		t.Fatalf("state = %v, want disconnected-fallback", sup.State())
	}
}

func TestSupervisor_DroppedConnectionFailsOverImmediately(t *testing.T) {
	mr1 := miniredis.RunT(t)
	mr2 := miniredis.RunT(t)
	sup := testSupervisor(t, false, mr1.Addr(), mr2.Addr())

	sup.ReportError(io.EOF)

	if sup.State() == StateConnected {
		t.Fatal("a dropped connection must flip the state at once")
	}
	waitForEndpoint(t, sup, mr2.Addr())
}

// A recovery dial must never stall readers: the state flips before any
// network I/O starts and the mutex is not held across it.
func TestSupervisor_ReadsDoNotBlockDuringFailover(t *testing.T) {
	mr := miniredis.RunT(t)

	// An endpoint that accepts connections but never answers keeps the
	// failover dial pinned until its timeout.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	sup := testSupervisor(t, false, mr.Addr(), ln.Addr().String())
	sup.ReportError(io.EOF)

	if sup.State() != StateDisconnectedFallback {
		t.Fatalf("state = %v, want immediate degradation", sup.State())
	}
	start := time.Now()
	_ = sup.State()
	_ = sup.Client()
	_ = sup.Endpoint()
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("reads took %v while failover dialed, want immediate return", d)
	}
}

func TestSupervisor_ErrorsWhileDisconnectedAreIgnored(t *testing.T) {
	sup := testSupervisor(t, false, "127.0.0.1:1")

	// Must not panic or double-flip; the supervisor is already disconnected.
	reportN(sup, 5)
	if sup.State() != StateDisconnectedFallback {
		t.Fatalf("state = %v, want disconnected-fallback", sup.State())
	}
}
