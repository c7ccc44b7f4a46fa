package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestItemExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	it := newItem("k", "v", nil, now.Add(time.Minute), now)
	if it.Expired(now) {
		t.Fatal("fresh item must not be expired")
	}
	if !it.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("item past its expiration must report expired")
	}
	forever := newItem("k", "v", nil, time.Time{}, now)
	if forever.Expired(now.Add(24 * 365 * time.Hour)) {
		t.Fatal("zero expiration means never")
	}
}

func TestItemSizeAlwaysPositive(t *testing.T) {
	now := time.Now()
	cases := []any{"", nil, 0, map[string]any{}, make(chan int)}
	for _, v := range cases {
		it := newItem("k", v, nil, time.Time{}, now)
		if it.SizeBytes <= 0 {
			t.Errorf("size for %T = %d, want > 0", v, it.SizeBytes)
		}
	}
}

func TestItemMapRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	it := newItem("k", map[string]any{"v": 1.5}, map[string]any{"src": "unit"}, now.Add(time.Hour), now)
	it.touch(now.Add(time.Second))

	restored := itemFromMap(jsonRoundTrip(t, it.toMap()))
	if restored == nil {
		t.Fatal("round trip lost the item")
	}
	if restored.Key != "k" || restored.AccessCount != 1 {
		t.Errorf("restored = %+v", restored)
	}
	if !restored.Expiration.Equal(it.Expiration) {
		t.Errorf("expiration %v != %v", restored.Expiration, it.Expiration)
	}
	if restored.SizeBytes != it.SizeBytes {
		t.Errorf("size %d != %d", restored.SizeBytes, it.SizeBytes)
	}
}

func TestItemFromMapRejectsGarbage(t *testing.T) {
	if itemFromMap(map[string]any{}) != nil {
		t.Fatal("missing key must be rejected")
	}
	if itemFromMap(map[string]any{"key": ""}) != nil {
		t.Fatal("empty key must be rejected")
	}
}

// jsonRoundTrip pushes a map through JSON the way the storage mirror does.
func jsonRoundTrip(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	s := make(map[string]any, len(m))
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	return s
}
