package cache

import "github.com/vmihailenco/msgpack/v5"

// EntryKind discriminates the shape of a cached payload.
type EntryKind uint8

const (
	// EntryNegative records a confirmed "not found" so repeated lookups for
	// an absent row skip the repository until the entry expires.
	EntryNegative EntryKind = iota
	// EntryRecord holds a single serialized record.
	EntryRecord
	// EntryRecordList holds an ordered list of serialized records.
	EntryRecordList
	// EntryScalar holds a count or aggregate result.
	EntryScalar
)

// Entry is a cache value at rest: plain serializable data, never a live
// repository object. Hydration back into domain records is owned by the
// repository collaborator.
type Entry struct {
	Kind    EntryKind        `msgpack:"k"`
	Record  map[string]any   `msgpack:"r,omitempty"`
	Records []map[string]any `msgpack:"l,omitempty"`
	Scalar  float64          `msgpack:"s,omitempty"`
}

// NegativeEntry returns the sentinel for a confirmed absent result.
func NegativeEntry() Entry {
	return Entry{Kind: EntryNegative}
}

// RecordEntry wraps a single serialized record.
func RecordEntry(payload map[string]any) Entry {
	return Entry{Kind: EntryRecord, Record: payload}
}

// RecordListEntry wraps an ordered list of serialized records.
func RecordListEntry(payloads []map[string]any) Entry {
	return Entry{Kind: EntryRecordList, Records: payloads}
}

// ScalarEntry wraps a count or aggregate result.
func ScalarEntry(v float64) Entry {
	return Entry{Kind: EntryScalar, Scalar: v}
}

// EncodeEntry serializes an entry for the shared backend.
func EncodeEntry(e Entry) ([]byte, error) {
	return msgpack.Marshal(e)
}

// DecodeEntry deserializes a shared-backend payload. A decode failure is a
// cache-subsystem fault and callers treat it as a miss.
func DecodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
