package modelcache

import (
	"reflect"
	"strings"
	"unicode"
)

// entityNameOf derives a default entity name from T's type name. We keep
// this local so we can aggressively strip punctuation (pointer stars,
// generic brackets, package qualifiers) that shows up in reflected type
// names; leaving those characters in the cache namespace would break
// prefix-based invalidation and produce keys the shared backend rejects.
func entityNameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return sanitizeEntityName(name)
}

// sanitizeEntityName keeps letters and digits, drops package qualifiers and
// generic instantiation suffixes, and rejects separators the key format
// reserves.
func sanitizeEntityName(name string) string {
	if idx := strings.IndexByte(name, '['); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
