package cache

import (
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfig_ZeroValueNormalizesToDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero config must normalize to valid defaults: %v", err)
	}

	norm := cfg.normalized()
	if norm.DefaultTTL != time.Hour {
		t.Errorf("DefaultTTL = %v, want 1h", norm.DefaultTTL)
	}
	if norm.AggregateTTL != 5*time.Minute {
		t.Errorf("AggregateTTL = %v, want 5m", norm.AggregateTTL)
	}
	if norm.LocalCapacity != 1000 {
		t.Errorf("LocalCapacity = %d, want 1000", norm.LocalCapacity)
	}
	if norm.ErrorThreshold != 3 || norm.ErrorWindow != 10*time.Second {
		t.Errorf("error tolerance = %d/%v, want 3/10s", norm.ErrorThreshold, norm.ErrorWindow)
	}
	if norm.ReconnectDelay != 3*time.Minute {
		t.Errorf("ReconnectDelay = %v, want 3m", norm.ReconnectDelay)
	}
}

func TestConfig_EndpointMerging(t *testing.T) {
	cfg := Config{
		Endpoint:  "redis-a:6379",
		Endpoints: []string{"redis-b:6379", "redis-c:6379"},
	}
	norm := cfg.normalized()
	want := []string{"redis-a:6379", "redis-b:6379", "redis-c:6379"}
	if len(norm.Endpoints) != len(want) {
		t.Fatalf("Endpoints = %v, want %v", norm.Endpoints, want)
	}
	for i := range want {
		if norm.Endpoints[i] != want[i] {
			t.Fatalf("Endpoints = %v, want %v (order matters for failover)", norm.Endpoints, want)
		}
	}
}

func TestConfig_RejectsNonsense(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LocalEvictionPercentage = 250
	if err := cfg.Validate(); err == nil {
		t.Fatal("eviction percentage over 100 must not validate")
	}
}
