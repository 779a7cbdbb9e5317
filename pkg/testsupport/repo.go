// Package testsupport provides shared test fixtures: an in-memory
// repository fake with call recording, and a miniredis harness for tests
// that exercise the shared backend.
package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kenndeclouv/kythia-cache/cache"
	"github.com/kenndeclouv/kythia-cache/modelcache"
)

// MemoryRepo is an in-memory modelcache.Repository implementation backed by
// a slice of records. It matches equality constraints only, records every
// method call for assertion, and moves records through JSON for
// Serialize/Hydrate so any plain struct works as T.
type MemoryRepo[T any] struct {
	mu      sync.Mutex
	pk      string
	records []T
	calls   map[string]int

	// FailNext, when set, makes the next repository call return this error.
	FailNext error
}

var _ modelcache.Repository[struct{}] = (*MemoryRepo[struct{}])(nil)

// NewMemoryRepo creates a repo keyed by the given primary key field name
// (as it appears in the serialized payload), seeded with records.
func NewMemoryRepo[T any](pk string, seed ...T) *MemoryRepo[T] {
	return &MemoryRepo[T]{
		pk:      pk,
		records: append([]T(nil), seed...),
		calls:   make(map[string]int),
	}
}

// Calls reports how many times the named method was invoked.
func (r *MemoryRepo[T]) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// TotalCalls reports the combined invocation count across all methods.
func (r *MemoryRepo[T]) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

func (r *MemoryRepo[T]) enter(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
	if err := r.FailNext; err != nil {
		r.FailNext = nil
		return err
	}
	return nil
}

func (r *MemoryRepo[T]) FindOne(ctx context.Context, q cache.Query) (T, bool, error) {
	var zero T
	if err := r.enter("FindOne"); err != nil {
		return zero, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if r.matches(rec, q) {
			return rec, true, nil
		}
	}
	return zero, false, nil
}

func (r *MemoryRepo[T]) FindMany(ctx context.Context, q cache.Query) ([]T, error) {
	if err := r.enter("FindMany"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, rec := range r.records {
		if r.matches(rec, q) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *MemoryRepo[T]) FindOrCreate(ctx context.Context, q cache.Query, defaults map[string]any) (T, bool, error) {
	var zero T
	if err := r.enter("FindOrCreate"); err != nil {
		return zero, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if r.matches(rec, q) {
			return rec, false, nil
		}
	}
	payload := make(map[string]any)
	for k, v := range q.Constraints() {
		payload[k] = v
	}
	for k, v := range defaults {
		payload[k] = v
	}
	rec, err := r.hydrate(payload)
	if err != nil {
		return zero, false, err
	}
	r.records = append(r.records, rec)
	return rec, true, nil
}

func (r *MemoryRepo[T]) Count(ctx context.Context, q cache.Query) (int64, error) {
	if err := r.enter("Count"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if r.matches(rec, q) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo[T]) Aggregate(ctx context.Context, fn, field string, q cache.Query) (float64, error) {
	if err := r.enter("Aggregate"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var values []float64
	for _, rec := range r.records {
		if !r.matches(rec, q) {
			continue
		}
		payload, err := serialize(rec)
		if err != nil {
			return 0, err
		}
		if v, ok := payload[field].(float64); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, nil
	}
	switch fn {
	case "sum", "avg":
		total := 0.0
		for _, v := range values {
			total += v
		}
		if fn == "avg" {
			return total / float64(len(values)), nil
		}
		return total, nil
	case "min":
		out := values[0]
		for _, v := range values[1:] {
			if v < out {
				out = v
			}
		}
		return out, nil
	case "max":
		out := values[0]
		for _, v := range values[1:] {
			if v > out {
				out = v
			}
		}
		return out, nil
	default:
		return 0, fmt.Errorf("testsupport: unsupported aggregate %q", fn)
	}
}

func (r *MemoryRepo[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	if err := r.enter("Create"); err != nil {
		return zero, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return record, nil
}

func (r *MemoryRepo[T]) CreateMany(ctx context.Context, records []T) ([]T, error) {
	if err := r.enter("CreateMany"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return records, nil
}

func (r *MemoryRepo[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	if err := r.enter("Update"); err != nil {
		return zero, err
	}
	pkv, ok := r.PrimaryKeyValue(record)
	if !ok {
		return zero, fmt.Errorf("testsupport: record has no %s", r.pk)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if existing, ok := r.PrimaryKeyValue(rec); ok && equalJSON(existing, pkv) {
			r.records[i] = record
			return record, nil
		}
	}
	r.records = append(r.records, record)
	return record, nil
}

func (r *MemoryRepo[T]) UpdateWhere(ctx context.Context, q cache.Query, values map[string]any) (int64, error) {
	if err := r.enter("UpdateWhere"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i, rec := range r.records {
		if !r.matches(rec, q) {
			continue
		}
		payload, err := serialize(rec)
		if err != nil {
			return n, err
		}
		for k, v := range values {
			payload[k] = v
		}
		updated, err := r.hydrate(payload)
		if err != nil {
			return n, err
		}
		r.records[i] = updated
		n++
	}
	return n, nil
}

func (r *MemoryRepo[T]) Delete(ctx context.Context, record T) error {
	if err := r.enter("Delete"); err != nil {
		return err
	}
	pkv, ok := r.PrimaryKeyValue(record)
	if !ok {
		return fmt.Errorf("testsupport: record has no %s", r.pk)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if existing, ok := r.PrimaryKeyValue(rec); ok && equalJSON(existing, pkv) {
			r.records = append(r.records[:i], r.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRepo[T]) DeleteWhere(ctx context.Context, q cache.Query) (int64, error) {
	if err := r.enter("DeleteWhere"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []T
	var n int64
	for _, rec := range r.records {
		if r.matches(rec, q) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}

func (r *MemoryRepo[T]) PrimaryKey() string {
	return r.pk
}

func (r *MemoryRepo[T]) PrimaryKeyValue(record T) (any, bool) {
	payload, err := serialize(record)
	if err != nil {
		return nil, false
	}
	v, ok := payload[r.pk]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *MemoryRepo[T]) Serialize(record T) (map[string]any, error) {
	return serialize(record)
}

func (r *MemoryRepo[T]) Hydrate(payload map[string]any) (T, error) {
	return r.hydrate(payload)
}

// matches checks equality constraints only; operator markers are beyond
// what the fixtures need.
func (r *MemoryRepo[T]) matches(record T, q cache.Query) bool {
	payload, err := serialize(record)
	if err != nil {
		return false
	}
	for field, want := range q.Constraints() {
		if !equalJSON(payload[field], want) {
			return false
		}
	}
	return true
}

func serialize[T any](record T) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *MemoryRepo[T]) hydrate(payload map[string]any) (T, error) {
	var rec T
	data, err := json.Marshal(payload)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// equalJSON compares two values after JSON normalization, so int(5) in a
// query matches float64(5) from a decoded payload.
func equalJSON(a, b any) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(da) == string(db)
}
