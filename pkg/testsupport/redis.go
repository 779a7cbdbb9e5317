package testsupport

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kenndeclouv/kythia-cache/cache"
)

// StartRedis runs an in-process redis server for the duration of the test.
func StartRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

// EngineConfig returns a default engine config pointed at the given
// endpoints.
func EngineConfig(version string, endpoints ...string) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Version = version
	cfg.Endpoints = endpoints
	return cfg
}
