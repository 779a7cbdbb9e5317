package cache

// ConnectionState describes which backend currently serves cached reads.
type ConnectionState string

const (
	// StateConnected means the shared backend is healthy and serving.
	StateConnected ConnectionState = "connected"
	// StateDisconnectedFallback means the shared backend is down and the
	// local in-process cache is serving. Only legal outside strict mode.
	StateDisconnectedFallback ConnectionState = "disconnected-fallback"
	// StateDisconnectedStrict means the shared backend is down and caching
	// is disabled entirely; every read passes through to the repository.
	StateDisconnectedStrict ConnectionState = "disconnected-strict"
)
