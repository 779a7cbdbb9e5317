package cache

import "testing"

func TestEntry_NegativeDistinctFromEmptyRecord(t *testing.T) {
	neg := NegativeEntry()
	empty := RecordEntry(map[string]any{})

	if neg.Kind == empty.Kind {
		t.Fatal("negative marker must not share a kind with an empty record")
	}

	data, err := EncodeEntry(neg)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	back, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if back.Kind != EntryNegative {
		t.Fatalf("round-tripped kind = %v, want EntryNegative", back.Kind)
	}
}

func TestEntry_RecordRoundTrip(t *testing.T) {
	ent := RecordEntry(map[string]any{"userId": int64(5), "name": "kythia"})
	data, err := EncodeEntry(ent)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	back, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if back.Kind != EntryRecord {
		t.Fatalf("kind = %v, want EntryRecord", back.Kind)
	}
	if back.Record["name"] != "kythia" {
		t.Fatalf("payload lost: %v", back.Record)
	}
}

func TestEntry_DecodeGarbage(t *testing.T) {
	if _, err := DecodeEntry([]byte("not msgpack at all \x00\x01")); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}
