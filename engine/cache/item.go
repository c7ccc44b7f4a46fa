package cache

import (
	"encoding/json"
	"time"
)

// Item is a single cached value with its bookkeeping. SizeBytes is always
// positive; Expiration of zero means the item never expires.
type Item struct {
	Key            string         `json:"key"`
	Value          any            `json:"value"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	AccessCount    int64          `json:"access_count"`
	Expiration     time.Time      `json:"expiration,omitzero"`
	SizeBytes      int64          `json:"size_bytes"`

	// seq breaks eviction ties between items with equal access times;
	// lower means inserted earlier.
	seq uint64
}

func newItem(key string, value any, metadata map[string]any, expiration time.Time, now time.Time) *Item {
	return &Item{
		Key:            key,
		Value:          value,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
		Expiration:     expiration,
		SizeBytes:      estimateSize(value),
	}
}

// Expired reports whether the item's TTL has lapsed at the given instant.
func (it *Item) Expired(now time.Time) bool {
	return !it.Expiration.IsZero() && now.After(it.Expiration)
}

func (it *Item) touch(now time.Time) {
	it.LastAccessedAt = now
	it.AccessCount++
}

// estimateSize approximates an item's footprint by its JSON encoding.
// Values that cannot be encoded get a fixed nominal size so accounting
// never goes to zero.
func estimateSize(value any) int64 {
	data, err := json.Marshal(value)
	if err != nil || len(data) == 0 {
		return 1024
	}
	return int64(len(data))
}

// toMap renders the item for the persistence mirror.
func (it *Item) toMap() map[string]any {
	m := map[string]any{
		"key":              it.Key,
		"value":            it.Value,
		"metadata":         it.Metadata,
		"created_at":       it.CreatedAt.UTC().Format(time.RFC3339Nano),
		"last_accessed_at": it.LastAccessedAt.UTC().Format(time.RFC3339Nano),
		"access_count":     it.AccessCount,
		"size_bytes":       it.SizeBytes,
	}
	if !it.Expiration.IsZero() {
		m["expiration"] = it.Expiration.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// itemFromMap restores a persisted item. Returns nil for entries too
// malformed to trust; the in-memory layer is authoritative, so dropping
// them is safe.
func itemFromMap(m map[string]any) *Item {
	key, _ := m["key"].(string)
	if key == "" {
		return nil
	}
	it := &Item{Key: key, Value: m["value"]}
	if md, ok := m["metadata"].(map[string]any); ok {
		it.Metadata = md
	}
	if ts := parseTime(m["created_at"]); !ts.IsZero() {
		it.CreatedAt = ts
	}
	if ts := parseTime(m["last_accessed_at"]); !ts.IsZero() {
		it.LastAccessedAt = ts
	}
	if n, ok := m["access_count"].(float64); ok {
		it.AccessCount = int64(n)
	}
	it.Expiration = parseTime(m["expiration"])
	if n, ok := m["size_bytes"].(float64); ok {
		it.SizeBytes = int64(n)
	}
	if it.SizeBytes <= 0 {
		it.SizeBytes = estimateSize(it.Value)
	}
	return it
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
