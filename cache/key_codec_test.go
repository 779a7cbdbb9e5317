package cache

import (
	"strings"
	"testing"
)

func TestKeyCodec_PinnedScenario(t *testing.T) {
	codec := NewKeyCodec("1.0.0")

	got := codec.Key("Account", Query{"userId": 5})
	want := `1.0.0:Account:{"userId":5}`
	if got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestKeyCodec_OrderIndependence(t *testing.T) {
	codec := NewKeyCodec("1.0.0")

	a := Query{"guildId": "g1", "userId": 5, "enabled": true}
	b := Query{}
	b["userId"] = 5
	b["enabled"] = true
	b["guildId"] = "g1"

	if codec.Key("Account", a) != codec.Key("Account", b) {
		t.Fatalf("construction order changed the key:\n a=%s\n b=%s",
			codec.Key("Account", a), codec.Key("Account", b))
	}
}

func TestKeyCodec_NestedSorting(t *testing.T) {
	codec := NewKeyCodec("1.0.0")

	q := Query{
		"meta": map[string]any{"zeta": 1, "alpha": map[string]any{"b": 2, "a": 1}},
	}
	got := codec.Key("Account", q)
	want := `1.0.0:Account:{"meta":{"alpha":{"a":1,"b":2},"zeta":1}}`
	if got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestKeyCodec_OperatorTokens(t *testing.T) {
	codec := NewKeyCodec("1.0.0")

	tests := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "greater than",
			q:    Query{"level": Gt(10)},
			want: `1.0.0:Account:{"level":{"$gt":10}}`,
		},
		{
			name: "in list",
			q:    Query{"status": In("active", "idle")},
			want: `1.0.0:Account:{"status":{"$in":["active","idle"]}}`,
		},
		{
			name: "like",
			q:    Query{"name": Like("kyt%")},
			want: `1.0.0:Account:{"name":{"$like":"kyt%"}}`,
		},
		{
			name: "range pair",
			q:    Query{"xp": Gte(100), "lvl": Lte(5)},
			want: `1.0.0:Account:{"lvl":{"$lte":5},"xp":{"$gte":100}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codec.Key("Account", tt.q); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyCodec_ScopedKeyDoesNotCollide(t *testing.T) {
	codec := NewKeyCodec("1.0.0")
	q := Query{"userId": 5}

	point := codec.Key("Account", q)
	many := codec.ScopedKey("Account", "many", q)
	count := codec.ScopedKey("Account", "count", q)

	if point == many || point == count || many == count {
		t.Fatalf("scoped keys collide: point=%q many=%q count=%q", point, many, count)
	}
	for _, key := range []string{point, many, count} {
		if !strings.HasPrefix(key, codec.EntityPrefix("Account")) {
			t.Errorf("key %q lacks entity prefix %q", key, codec.EntityPrefix("Account"))
		}
	}
}

func TestKeyCodec_MetaKeysAffectKey(t *testing.T) {
	codec := NewKeyCodec("1.0.0")
	base := Query{"guildId": "g1"}

	limited := base.WithLimit(10)
	ordered := base.OrderBy("xp", "DESC")

	keys := map[string]bool{
		codec.ScopedKey("Account", "many", base):    true,
		codec.ScopedKey("Account", "many", limited): true,
		codec.ScopedKey("Account", "many", ordered): true,
	}
	if len(keys) != 3 {
		t.Fatalf("limit/order variants must key differently, got %d distinct keys", len(keys))
	}
}

func TestKeyCodec_TypedSlicesNormalize(t *testing.T) {
	codec := NewKeyCodec("1.0.0")

	a := Query{"id": In(1, 2, 3)}
	b := Query{"id": Operator{Token: "$in", Value: []int{1, 2, 3}}}
	if codec.Key("Account", a) != codec.Key("Account", b) {
		t.Fatalf("typed slice keyed differently:\n a=%s\n b=%s",
			codec.Key("Account", a), codec.Key("Account", b))
	}
}

func TestQuery_Empty(t *testing.T) {
	if !(Query{}).Empty() {
		t.Error("empty query must report Empty")
	}
	if !(Query{}.WithLimit(5).OrderBy("id", "ASC")).Empty() {
		t.Error("meta-only query must report Empty")
	}
	if (Query{"userId": 5}).Empty() {
		t.Error("constrained query must not report Empty")
	}
}

func TestWhere_BuildsConstraints(t *testing.T) {
	q := Where("guildId", "g1", "userId", 5)
	if len(q.Constraints()) != 2 {
		t.Fatalf("Constraints() = %v", q.Constraints())
	}
	codec := NewKeyCodec("1.0.0")
	if codec.Key("Account", q) != codec.Key("Account", Query{"userId": 5, "guildId": "g1"}) {
		t.Error("Where must key identically to a literal query")
	}
}
