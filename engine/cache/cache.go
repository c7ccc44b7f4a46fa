// Package cache provides the size-bounded, TTL-expiring memoization layer
// used by the analysis kernels. The in-memory map is authoritative; an
// optional storage port acts as a best-effort write-through mirror whose
// failures are logged and otherwise ignored.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	metrics "tacklens/engine/internal/telemetry/metrics"
	"tacklens/engine/storage"
)

// Defaults mirror the sizing the engine ships with.
const (
	DefaultMaxSizeBytes = 10 * 1024 * 1024
	DefaultTTL          = time.Hour
)

// InvalidationFunc decides whether a cached key must be discarded. It runs
// on Get; a panicking predicate is logged and treated as "keep".
type InvalidationFunc func(key string) bool

// ComputeFunc produces the value for a parameter set on a cache miss.
type ComputeFunc func(parameters map[string]any) (any, error)

// Stats is the cache's aggregate state snapshot.
type Stats struct {
	Namespace        string  `json:"namespace"`
	ItemCount        int     `json:"item_count"`
	CurrentSizeBytes int64   `json:"current_size_bytes"`
	MaxSizeBytes     int64   `json:"max_size_bytes"`
	UsagePercent     float64 `json:"usage_percent"`
	HitCount         int64   `json:"hit_count"`
	MissCount        int64   `json:"miss_count"`
	HitRate          float64 `json:"hit_rate"`
	EvictionCount    int64   `json:"eviction_count"`
}

// Cache is a thread-safe analysis result cache.
type Cache struct {
	mu            sync.Mutex
	items         map[string]*Item
	currentSize   int64
	hitCount      int64
	missCount     int64
	evictionCount int64
	nextSeq       uint64

	invalidations []InvalidationFunc

	namespace string
	maxSize   int64
	ttl       time.Duration
	store     storage.Storage
	keyPrefix string
	logger    *slog.Logger
	now       func() time.Time

	mHits      metrics.Counter
	mMisses    metrics.Counter
	mEvictions metrics.Counter
	mSize      metrics.Gauge
	mItems     metrics.Gauge
}

// Option configures a Cache.
type Option func(*Cache)

// WithStorage attaches the persistence mirror.
func WithStorage(s storage.Storage) Option {
	return func(c *Cache) { c.store = s }
}

// WithNamespace sets the cache namespace used in storage keys and stats.
func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

// WithMaxSize bounds the cache to maxBytes.
func WithMaxSize(maxBytes int64) Option {
	return func(c *Cache) { c.maxSize = maxBytes }
}

// WithTTL sets the default time-to-live applied when Set gets no explicit
// TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger routes cache diagnostics to the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics instruments the cache through the given provider.
func WithMetrics(p metrics.Provider) Option {
	return func(c *Cache) {
		if p == nil {
			return
		}
		c.mHits = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "tacklens", Subsystem: "cache", Name: "hits_total", Help: "Cache lookups served from memory or mirror"}})
		c.mMisses = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "tacklens", Subsystem: "cache", Name: "misses_total", Help: "Cache lookups that required recomputation"}})
		c.mEvictions = p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "tacklens", Subsystem: "cache", Name: "evictions_total", Help: "Items dropped by eviction"}})
		c.mSize = p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: "tacklens", Subsystem: "cache", Name: "size_bytes", Help: "Current cache footprint"}})
		c.mItems = p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: "tacklens", Subsystem: "cache", Name: "items", Help: "Current cached item count"}})
	}
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New constructs a cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		items:     make(map[string]*Item),
		namespace: "analysis_cache",
		maxSize:   DefaultMaxSizeBytes,
		ttl:       DefaultTTL,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.keyPrefix = "cache_" + c.namespace + "_"
	return c
}

// SetOptions tune a single Set call.
type SetOptions struct {
	TTL       time.Duration // 0 means the cache default
	Metadata  map[string]any
	Overwrite bool
}

// Set stores a value. Returns false when the key exists and Overwrite is
// unset, or when the item cannot fit even after eviction.
func (c *Cache) Set(key string, value any, opts SetOptions) bool {
	now := c.now()
	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.ttl
	}
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}
	item := newItem(key, value, opts.Metadata, expiration, now)

	c.mu.Lock()
	if existing, ok := c.items[key]; ok {
		if !opts.Overwrite {
			c.mu.Unlock()
			return false
		}
		c.removeLocked(existing, false)
	} else if c.currentSize+item.SizeBytes > c.maxSize {
		c.evictLocked(item.SizeBytes, now)
	}
	if c.currentSize+item.SizeBytes > c.maxSize {
		// Still no room (item larger than the whole cache, or a zero-size
		// cache). Caching is effectively disabled for this value.
		c.mu.Unlock()
		c.logger.Debug("cache item does not fit, skipping",
			"key", key, "size", humanize.Bytes(uint64(item.SizeBytes)))
		return false
	}
	item.seq = c.nextSeq
	c.nextSeq++
	c.items[key] = item
	c.currentSize += item.SizeBytes
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.persist(item)
	return true
}

// Get returns the cached value for key. Expired or invalidated items are
// deleted and reported as misses.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()
	c.mu.Lock()
	item, ok := c.items[key]
	c.mu.Unlock()

	if !ok && c.store != nil {
		item = c.loadFromStore(key)
	}
	if item == nil {
		c.miss()
		return nil, false
	}
	if item.Expired(now) {
		c.Delete(key)
		c.miss()
		return nil, false
	}
	if c.invalidated(key) {
		c.Delete(key)
		c.miss()
		return nil, false
	}
	c.mu.Lock()
	item.touch(now)
	c.mu.Unlock()
	c.hit()
	return item.Value, true
}

// ComputeIfAbsent returns the cached value for key, computing and storing
// it when absent.
func (c *Cache) ComputeIfAbsent(key string, compute func() (any, error), ttl time.Duration, metadata map[string]any) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, SetOptions{TTL: ttl, Metadata: metadata, Overwrite: true})
	return v, nil
}

// ComputeFromParams memoizes a parameterized computation under
// Fingerprint(prefix, parameters). The stored metadata records the source
// prefix and parameters alongside any caller-supplied entries.
func (c *Cache) ComputeFromParams(prefix string, parameters map[string]any, compute ComputeFunc, ttl time.Duration, metadata map[string]any) (any, error) {
	key := Fingerprint(prefix, parameters)
	md := map[string]any{
		"source_prefix": prefix,
		"source_params": parameters,
		"computed_at":   c.now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		md[k] = v
	}
	return c.ComputeIfAbsent(key, func() (any, error) { return compute(parameters) }, ttl, md)
}

// Delete removes a key from memory and the mirror.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	if item, ok := c.items[key]; ok {
		c.removeLocked(item, false)
		c.updateGaugesLocked()
	}
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(c.keyPrefix + key); err != nil {
			c.logger.Warn("cache mirror delete failed", "key", key, "error", err)
		}
	}
}

// Clear empties the cache and the mirror.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*Item)
	c.currentSize = 0
	c.updateGaugesLocked()
	c.mu.Unlock()
	if c.store == nil {
		return
	}
	keys, err := c.store.ListKeys(c.keyPrefix)
	if err != nil {
		c.logger.Warn("cache mirror clear failed", "error", err)
		return
	}
	for _, k := range keys {
		if err := c.store.Delete(k); err != nil {
			c.logger.Warn("cache mirror delete failed", "key", k, "error", err)
		}
	}
}

// Keys returns the keys currently held in memory.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ItemsByPrefix returns (key, value, metadata) for every live in-memory
// item whose key starts with prefix.
func (c *Cache) ItemsByPrefix(prefix string) []Item {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Item
	for k, item := range c.items {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix && !item.Expired(now) {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AddInvalidation registers an invalidation predicate.
func (c *Cache) AddInvalidation(fn InvalidationFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.invalidations = append(c.invalidations, fn)
	c.mu.Unlock()
}

// CleanupExpired removes every expired item and returns how many were
// dropped.
func (c *Cache) CleanupExpired() int {
	now := c.now()
	c.mu.Lock()
	var expired []string
	for k, item := range c.items {
		if item.Expired(now) {
			expired = append(expired, k)
		}
	}
	c.mu.Unlock()
	for _, k := range expired {
		c.Delete(k)
	}
	return len(expired)
}

// Stats returns the aggregate snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Namespace:        c.namespace,
		ItemCount:        len(c.items),
		CurrentSizeBytes: c.currentSize,
		MaxSizeBytes:     c.maxSize,
		HitCount:         c.hitCount,
		MissCount:        c.missCount,
		EvictionCount:    c.evictionCount,
	}
	if c.maxSize > 0 {
		s.UsagePercent = float64(c.currentSize) / float64(c.maxSize) * 100
	}
	if total := c.hitCount + c.missCount; total > 0 {
		s.HitRate = float64(c.hitCount) / float64(total)
	}
	return s
}

// SaveState mirrors the key index and stats to storage so a later session
// can rebuild the cache.
func (c *Cache) SaveState() error {
	if c.store == nil {
		return storage.ErrNotAvailable
	}
	stats := c.Stats()
	if err := c.store.Save(c.keyPrefix+"stats", map[string]any{
		"hit_count":      stats.HitCount,
		"miss_count":     stats.MissCount,
		"eviction_count": stats.EvictionCount,
		"saved_at":       c.now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	return c.store.Save(c.keyPrefix+"index", map[string]any{
		"keys":       c.Keys(),
		"updated_at": c.now().UTC().Format(time.RFC3339Nano),
	})
}

// LoadState rebuilds the in-memory cache from the mirror, discarding
// expired or inconsistent entries.
func (c *Cache) LoadState() error {
	if c.store == nil {
		return storage.ErrNotAvailable
	}
	raw, ok, err := c.store.Load(c.keyPrefix + "index")
	if err != nil || !ok {
		return err
	}
	index, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	keys, ok := index["keys"].([]any)
	if !ok {
		return nil
	}
	now := c.now()
	for _, kv := range keys {
		key, ok := kv.(string)
		if !ok {
			continue
		}
		entry, found, err := c.store.Load(c.keyPrefix + key)
		if err != nil || !found {
			continue
		}
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := itemFromMap(m)
		if item == nil || item.Expired(now) {
			continue
		}
		c.mu.Lock()
		if _, exists := c.items[key]; !exists {
			item.seq = c.nextSeq
			c.nextSeq++
			c.items[key] = item
			c.currentSize += item.SizeBytes
		}
		c.mu.Unlock()
	}
	if raw, ok, err := c.store.Load(c.keyPrefix + "stats"); err == nil && ok {
		if stats, ok := raw.(map[string]any); ok {
			c.mu.Lock()
			if n, ok := stats["hit_count"].(float64); ok {
				c.hitCount = int64(n)
			}
			if n, ok := stats["miss_count"].(float64); ok {
				c.missCount = int64(n)
			}
			if n, ok := stats["eviction_count"].(float64); ok {
				c.evictionCount = int64(n)
			}
			c.mu.Unlock()
		}
	}
	c.mu.Lock()
	c.updateGaugesLocked()
	c.mu.Unlock()
	return nil
}

// evictLocked frees room for required bytes: expired items first, then
// least-recently-accessed until at least max(required, 20% of capacity)
// is freed. Ties on access time fall back to insertion order, keeping
// eviction deterministic.
func (c *Cache) evictLocked(required int64, now time.Time) {
	if len(c.items) == 0 {
		return
	}
	target := required
	if min := c.maxSize / 5; min > target {
		target = min
	}
	var freed int64
	var evicted int

	for _, item := range c.items {
		if item.Expired(now) {
			freed += item.SizeBytes
			c.removeLocked(item, true)
			evicted++
		}
	}
	if freed < target {
		live := make([]*Item, 0, len(c.items))
		for _, item := range c.items {
			live = append(live, item)
		}
		sort.Slice(live, func(i, j int) bool {
			if live[i].LastAccessedAt.Equal(live[j].LastAccessedAt) {
				return live[i].seq < live[j].seq
			}
			return live[i].LastAccessedAt.Before(live[j].LastAccessedAt)
		})
		for _, item := range live {
			if freed >= target {
				break
			}
			freed += item.SizeBytes
			c.removeLocked(item, true)
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Debug("cache eviction",
			"evicted", evicted, "freed", humanize.Bytes(uint64(freed)),
			"usage", humanize.Bytes(uint64(c.currentSize)))
	}
}

// removeLocked drops an item from the in-memory layer. Mirror deletion for
// evictions happens lazily: stale mirror entries are filtered on load.
func (c *Cache) removeLocked(item *Item, evicting bool) {
	if _, ok := c.items[item.Key]; !ok {
		return
	}
	delete(c.items, item.Key)
	c.currentSize -= item.SizeBytes
	if c.currentSize < 0 {
		c.currentSize = 0
	}
	if evicting {
		c.evictionCount++
		if c.mEvictions != nil {
			c.mEvictions.Inc(1)
		}
	}
}

func (c *Cache) invalidated(key string) bool {
	c.mu.Lock()
	fns := append([]InvalidationFunc(nil), c.invalidations...)
	c.mu.Unlock()
	for _, fn := range fns {
		stale := func() (result bool) {
			defer func() {
				if rec := recover(); rec != nil {
					c.logger.Warn("cache invalidation predicate panicked", "key", key, "panic", rec)
					result = false
				}
			}()
			return fn(key)
		}()
		if stale {
			return true
		}
	}
	return false
}

func (c *Cache) persist(item *Item) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.keyPrefix+item.Key, item.toMap()); err != nil {
		c.logger.Warn("cache mirror write failed", "key", item.Key, "error", err)
	}
}

func (c *Cache) loadFromStore(key string) *Item {
	raw, ok, err := c.store.Load(c.keyPrefix + key)
	if err != nil {
		c.logger.Warn("cache mirror read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	item := itemFromMap(m)
	if item == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.items[key]; ok {
		return existing
	}
	if c.currentSize+item.SizeBytes > c.maxSize {
		c.evictLocked(item.SizeBytes, c.now())
	}
	if c.currentSize+item.SizeBytes > c.maxSize {
		return item // serve it without retaining
	}
	item.seq = c.nextSeq
	c.nextSeq++
	c.items[key] = item
	c.currentSize += item.SizeBytes
	c.updateGaugesLocked()
	return item
}

func (c *Cache) hit() {
	c.mu.Lock()
	c.hitCount++
	c.mu.Unlock()
	if c.mHits != nil {
		c.mHits.Inc(1)
	}
}

func (c *Cache) miss() {
	c.mu.Lock()
	c.missCount++
	c.mu.Unlock()
	if c.mMisses != nil {
		c.mMisses.Inc(1)
	}
}

func (c *Cache) updateGaugesLocked() {
	if c.mSize != nil {
		c.mSize.Set(float64(c.currentSize))
	}
	if c.mItems != nil {
		c.mItems.Set(float64(len(c.items)))
	}
}
