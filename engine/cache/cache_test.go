package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacklens/engine/storage"
)

// fakeClock steps time deterministically for TTL and eviction ordering.
type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(clock *fakeClock, opts ...Option) *Cache {
	opts = append(opts, withClock(clock.Now))
	return New(opts...)
}

func TestFingerprintDeterminism(t *testing.T) {
	a := Fingerprint("wind", map[string]any{"b": 2.0, "a": 1.0})
	b := Fingerprint("wind", map[string]any{"a": 1.0, "b": 2.0})
	assert.Equal(t, a, b, "key order must not affect the fingerprint")

	c := Fingerprint("wind", map[string]any{"a": 1.0, "b": 3.0})
	assert.NotEqual(t, a, c)

	d := Fingerprint("strategy", map[string]any{"a": 1.0, "b": 2.0})
	assert.NotEqual(t, a, d, "prefix is part of the identity")
	assert.Contains(t, d, "strategy_")
}

func TestCanonicalJSON(t *testing.T) {
	got := CanonicalJSON(map[string]any{"b": true, "a": 1.5, "c": []any{"x", 2.0}})
	assert.Equal(t, `{"a":1.5,"b":true,"c":["x",2]}`, got)
	assert.Equal(t, `{"n":null}`, CanonicalJSON(map[string]any{"n": nil}))
	// Integral floats and ints encode identically.
	assert.Equal(t, CanonicalJSON(map[string]any{"v": 5}), CanonicalJSON(map[string]any{"v": 5.0}))
}

func TestSetGet(t *testing.T) {
	c := newTestCache(newFakeClock())
	require.True(t, c.Set("k", "value", SetOptions{Overwrite: true}))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	assert.False(t, c.Set("k", "other", SetOptions{}), "no-overwrite set on existing key fails")
	require.True(t, c.Set("k", "other", SetOptions{Overwrite: true}))
	v, _ = c.Get("k")
	assert.Equal(t, "other", v)
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithTTL(time.Hour))
	c.Set("k", 1, SetOptions{Overwrite: true})

	clock.Advance(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired item must be a miss")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, 0, stats.ItemCount)
}

func TestComputeFromParamsIdempotence(t *testing.T) {
	c := newTestCache(newFakeClock())
	calls := 0
	compute := func(map[string]any) (any, error) {
		calls++
		return "result", nil
	}
	p := map[string]any{"x": 1.0}
	v1, err := c.ComputeFromParams("pre", p, compute, 0, nil)
	require.NoError(t, err)
	v2, err := c.ComputeFromParams("pre", p, compute, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls, "second call must hit the cache")

	_, err = c.ComputeFromParams("pre", map[string]any{"x": 2.0}, compute, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "different parameters must recompute")
}

func TestComputeFromParamsPropagatesErrors(t *testing.T) {
	c := newTestCache(newFakeClock())
	boom := errors.New("boom")
	_, err := c.ComputeFromParams("pre", map[string]any{}, func(map[string]any) (any, error) {
		return nil, boom
	}, 0, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().ItemCount, "failed computations are not cached")
}

func TestSizeAccounting(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set("a", "0123456789", SetOptions{Overwrite: true})
	c.Set("b", "0123456789", SetOptions{Overwrite: true})
	stats := c.Stats()
	assert.Equal(t, 2, stats.ItemCount)
	assert.Equal(t, int64(24), stats.CurrentSizeBytes, "two 12-byte JSON strings")

	c.Delete("a")
	assert.Equal(t, int64(12), c.Stats().CurrentSizeBytes)
	c.Clear()
	assert.Equal(t, int64(0), c.Stats().CurrentSizeBytes)
}

func TestEvictionUnderPressure(t *testing.T) {
	clock := newFakeClock()
	// Each item is a 100-byte JSON payload.
	value := func() string {
		b := make([]byte, 98) // plus two quote bytes = 100
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}()
	c := newTestCache(clock, WithMaxSize(1000), WithTTL(0))

	var inserted []string
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("item-%02d", i)
		clock.Advance(time.Second)
		require.True(t, c.Set(key, value, SetOptions{Overwrite: true}))
		inserted = append(inserted, key)
		stats := c.Stats()
		assert.LessOrEqual(t, stats.CurrentSizeBytes, int64(1000), "size bound violated after insert %d", i)
	}

	stats := c.Stats()
	assert.Positive(t, stats.EvictionCount)
	// LRU property: the oldest inserts are gone, the newest survive.
	keys := c.Keys()
	assert.NotContains(t, keys, "item-00")
	assert.NotContains(t, keys, "item-01")
	assert.Contains(t, keys, "item-19")
}

func TestEvictionPrefersExpired(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithMaxSize(210), WithTTL(0))
	c.Set("short", "aaaaaaaa", SetOptions{TTL: time.Minute, Overwrite: true})
	clock.Advance(time.Second)
	c.Set("long", "bbbbbbbb", SetOptions{TTL: time.Hour, Overwrite: true})
	clock.Advance(2 * time.Minute) // "short" is now expired

	// Force pressure: a value large enough to need eviction.
	big := make([]byte, 200)
	for i := range big {
		big[i] = 'c'
	}
	require.True(t, c.Set("big", string(big), SetOptions{TTL: time.Hour, Overwrite: true}))
	keys := c.Keys()
	assert.NotContains(t, keys, "short", "expired items go first")
	assert.Contains(t, keys, "big")
}

func TestZeroSizeCacheDisablesCaching(t *testing.T) {
	c := newTestCache(newFakeClock(), WithMaxSize(0))
	assert.False(t, c.Set("k", "v", SetOptions{Overwrite: true}))
	_, ok := c.Get("k")
	assert.False(t, ok)

	// compute_from_params still works, it just recomputes every time.
	calls := 0
	compute := func(map[string]any) (any, error) { calls++; return calls, nil }
	v, err := c.ComputeFromParams("p", map[string]any{}, compute, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = c.ComputeFromParams("p", map[string]any{}, compute, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestInvalidationCallback(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set("stale-1", 1, SetOptions{Overwrite: true})
	c.Set("fresh-1", 2, SetOptions{Overwrite: true})
	c.AddInvalidation(func(key string) bool { return key[:5] == "stale" })

	_, ok := c.Get("stale-1")
	assert.False(t, ok, "invalidated key must be a miss")
	_, ok = c.Get("fresh-1")
	assert.True(t, ok)
}

func TestInvalidationPanicIsContained(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set("k", 1, SetOptions{Overwrite: true})
	c.AddInvalidation(func(string) bool { panic("predicate bug") })
	v, ok := c.Get("k")
	assert.True(t, ok, "panicking predicate must not invalidate")
	assert.Equal(t, 1, v)
}

func TestCleanupExpired(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithTTL(0))
	c.Set("a", 1, SetOptions{TTL: time.Minute, Overwrite: true})
	c.Set("b", 2, SetOptions{TTL: time.Hour, Overwrite: true})
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, []string{"b"}, c.Keys())
}

func TestWriteThroughPersistence(t *testing.T) {
	store := storage.NewMemory(0)
	clock := newFakeClock()
	c := newTestCache(clock, WithStorage(store), WithNamespace("unit"))
	c.Set("k", map[string]any{"v": 1.0}, SetOptions{Overwrite: true})

	keys, err := store.ListKeys("cache_unit_")
	require.NoError(t, err)
	assert.Contains(t, keys, "cache_unit_k")

	require.NoError(t, c.SaveState())

	// A fresh cache over the same storage restores the live item.
	fresh := newTestCache(clock, WithStorage(store), WithNamespace("unit"))
	require.NoError(t, fresh.LoadState())
	v, ok := fresh.Get("k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"v": 1.0}, v)
}

func TestPersistenceFailureDoesNotFailOperations(t *testing.T) {
	store := storage.NewMemory(1) // everything over quota
	c := newTestCache(newFakeClock(), WithStorage(store))
	assert.True(t, c.Set("k", "value", SetOptions{Overwrite: true}), "mirror failure must not fail Set")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestItemsByPrefix(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set("wind_a", 1, SetOptions{Overwrite: true})
	c.Set("wind_b", 2, SetOptions{Overwrite: true})
	c.Set("perf_a", 3, SetOptions{Overwrite: true})
	items := c.ItemsByPrefix("wind_")
	require.Len(t, items, 2)
	assert.Equal(t, "wind_a", items[0].Key)
}

func TestStatsRates(t *testing.T) {
	c := newTestCache(newFakeClock(), WithMaxSize(1000))
	c.Set("k", 1, SetOptions{Overwrite: true})
	c.Get("k")
	c.Get("missing")
	stats := c.Stats()
	assert.Equal(t, 0.5, stats.HitRate)
	assert.InDelta(t, float64(stats.CurrentSizeBytes)/10, stats.UsagePercent, 1e-9)
}

func TestAccessCountMonotonic(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	c.Set("k", 1, SetOptions{Overwrite: true})
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		c.Get("k")
	}
	items := c.ItemsByPrefix("k")
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].AccessCount)
}
