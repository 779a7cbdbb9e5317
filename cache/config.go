package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config exposes the engine's configuration surface.
type Config struct {
	// Version is the cache epoch token embedded in every key. Bump it after
	// a schema change to invalidate everything without explicit deletion.
	Version string

	// Strict enables sharded-deployment semantics: when the shared backend
	// is unreachable, caching is disabled entirely instead of falling back
	// to the node-local cache, so nodes can never serve divergent data.
	Strict bool

	// Endpoint is a single shared-backend address. Convenience form of
	// Endpoints; both may be set and are merged in order.
	Endpoint string

	// Endpoints is the ordered failover list of shared-backend addresses.
	Endpoints []string

	// Password and DB are passed through to the shared-backend client.
	Password string
	DB       int

	// DefaultTTL bounds point and list lookups. Default 1 hour.
	DefaultTTL time.Duration

	// AggregateTTL bounds count and aggregate lookups, which are cheaper to
	// recompute but change more often. Default 5 minutes.
	AggregateTTL time.Duration

	// LocalCapacity bounds the in-process fallback cache. Default 1000.
	LocalCapacity int

	// LocalNumShards and LocalEvictionPercentage tune the fallback store.
	LocalNumShards          int
	LocalEvictionPercentage int

	// ErrorThreshold errors within ErrorWindow count as a sustained outage
	// rather than a transient blip. Defaults: 3 within 10 seconds.
	ErrorThreshold int
	ErrorWindow    time.Duration

	// ReconnectDelay is how long after the last reconnect attempt the
	// scheduled retry fires once every endpoint is exhausted. Default 3
	// minutes.
	ReconnectDelay time.Duration

	// DialTimeout bounds each connection attempt. Default 5 seconds.
	DialTimeout time.Duration
}

// DefaultConfig returns a Config populated with the engine defaults.
func DefaultConfig() Config {
	return Config{
		Version:                 "1",
		Endpoints:               []string{"localhost:6379"},
		DefaultTTL:              time.Hour,
		AggregateTTL:            5 * time.Minute,
		LocalCapacity:           1000,
		LocalNumShards:          64,
		LocalEvictionPercentage: 10,
		ErrorThreshold:          3,
		ErrorWindow:             10 * time.Second,
		ReconnectDelay:          3 * time.Minute,
		DialTimeout:             5 * time.Second,
	}
}

// Validate checks whether the configuration values are usable.
func (c Config) Validate() error {
	norm := c.normalized()
	return validation.ValidateStruct(&norm,
		validation.Field(&norm.Version, validation.Required),
		validation.Field(&norm.Endpoints, validation.Required),
		validation.Field(&norm.DefaultTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&norm.AggregateTTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&norm.LocalCapacity, validation.Required, validation.Min(1)),
		validation.Field(&norm.LocalNumShards, validation.Required, validation.Min(1)),
		validation.Field(&norm.LocalEvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&norm.ErrorThreshold, validation.Required, validation.Min(1)),
		validation.Field(&norm.ErrorWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&norm.ReconnectDelay, validation.Required, validation.Min(time.Millisecond)),
	)
}

// normalized merges the Endpoint convenience field into the failover list
// and fills zero values with defaults.
func (c Config) normalized() Config {
	def := DefaultConfig()
	out := c

	var endpoints []string
	if c.Endpoint != "" {
		endpoints = append(endpoints, c.Endpoint)
	}
	endpoints = append(endpoints, c.Endpoints...)
	if len(endpoints) == 0 {
		endpoints = def.Endpoints
	}
	out.Endpoint = ""
	out.Endpoints = endpoints

	if out.Version == "" {
		out.Version = def.Version
	}
	if out.DefaultTTL == 0 {
		out.DefaultTTL = def.DefaultTTL
	}
	if out.AggregateTTL == 0 {
		out.AggregateTTL = def.AggregateTTL
	}
	if out.LocalCapacity == 0 {
		out.LocalCapacity = def.LocalCapacity
	}
	if out.LocalNumShards == 0 {
		out.LocalNumShards = def.LocalNumShards
	}
	if out.LocalEvictionPercentage == 0 {
		out.LocalEvictionPercentage = def.LocalEvictionPercentage
	}
	if out.ErrorThreshold == 0 {
		out.ErrorThreshold = def.ErrorThreshold
	}
	if out.ErrorWindow == 0 {
		out.ErrorWindow = def.ErrorWindow
	}
	if out.ReconnectDelay == 0 {
		out.ReconnectDelay = def.ReconnectDelay
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = def.DialTimeout
	}
	return out
}
