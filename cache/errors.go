package cache

import "errors"

var (
	// ErrEmptyQuery rejects empty-criteria lookups before they reach the
	// cache; caching a constraint-free query would cache "select
	// everything". This is a caller bug, not a runtime fault.
	ErrEmptyQuery = errors.New("cache: empty query is not a valid cache candidate")

	// ErrEngineClosed is returned when an operation races engine shutdown.
	ErrEngineClosed = errors.New("cache: engine is closed")
)
