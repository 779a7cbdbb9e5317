package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeySeparator delimits the version, entity, and descriptor segments of a
// cache key.
const KeySeparator = ":"

// KeyCodec turns query descriptors into deterministic cache keys of the form
// {version}:{entity}:{canonicalDescriptor}. Two descriptors that are
// semantically identical but constructed in different field orders always
// produce the same key: object keys are sorted lexicographically at every
// nesting level and Operator markers are rewritten into stable tokens.
//
// The version segment is an epoch-bust token: bumping it after a schema
// change invalidates every key without explicit deletion.
type KeyCodec struct {
	Version string
}

// NewKeyCodec creates a codec for the given cache version.
func NewKeyCodec(version string) KeyCodec {
	return KeyCodec{Version: version}
}

// Key builds the cache key for a point lookup.
func (c KeyCodec) Key(entity string, q Query) string {
	var b strings.Builder
	b.WriteString(c.Version)
	b.WriteString(KeySeparator)
	b.WriteString(entity)
	b.WriteString(KeySeparator)
	writeCanonical(&b, map[string]any(q))
	return b.String()
}

// ScopedKey builds the cache key for a non-point lookup (list, count,
// aggregate). The scope segment keeps these from colliding with a point
// lookup on the same descriptor.
func (c KeyCodec) ScopedKey(entity, scope string, q Query) string {
	var b strings.Builder
	b.WriteString(c.Version)
	b.WriteString(KeySeparator)
	b.WriteString(entity)
	b.WriteString(KeySeparator)
	b.WriteString(scope)
	b.WriteString(KeySeparator)
	writeCanonical(&b, map[string]any(q))
	return b.String()
}

// EntityPrefix returns the prefix shared by every key of the entity under
// this codec's version. Used for blunt local-cache invalidation.
func (c KeyCodec) EntityPrefix(entity string) string {
	return c.Version + KeySeparator + entity + KeySeparator
}

// writeCanonical renders v as compact JSON with sorted object keys at every
// level. Operator markers become single-key objects keyed by their token.
func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case Operator:
		b.WriteByte('{')
		writeJSONString(b, t.Token)
		b.WriteByte(':')
		writeCanonical(b, t.Value)
		b.WriteByte('}')
	case Query:
		writeCanonical(b, map[string]any(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, elem)
		}
		b.WriteByte(']')
	default:
		writeReflected(b, v)
	}
}

// writeReflected handles typed maps, slices, and arrays that did not match
// the concrete cases above, then falls back to plain JSON for scalars.
func writeReflected(b *strings.Builder, v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			b.WriteString("null")
			return
		}
		writeCanonical(b, rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			writeJSONFallback(b, v)
			return
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		writeCanonical(b, m)
	case reflect.Slice, reflect.Array:
		b.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, rv.Index(i).Interface())
		}
		b.WriteByte(']')
	default:
		writeJSONFallback(b, v)
	}
}

func writeJSONFallback(b *strings.Builder, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// Stability over perfection: an unmarshalable leaf still yields a
		// usable, deterministic-enough key.
		fmt.Fprintf(b, "%q", fmt.Sprintf("%v", v))
		return
	}
	b.Write(data)
}

func writeJSONString(b *strings.Builder, s string) {
	data, _ := json.Marshal(s)
	b.Write(data)
}
