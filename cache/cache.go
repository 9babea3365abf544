// Package cache is an in-process TTL cache for read paths. Keys live in
// namespaces, each with its own TTL, so that invalidating one kind of
// cached data never touches another.
//
// Entries expire both actively, through a timer scheduled on insert, and
// passively, when a read finds them past their TTL. Both use the same
// predicate, so a late timer never causes a stale read.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"
)

// Namespaces used by the repositories.
const (
	NSRecipe            = "recipe"
	NSRecipesPublic     = "recipes:public"
	NSRecipesByAuthor   = "recipes:author"
	NSRecipesByCategory = "recipes:category"
	NSCollection        = "collection"
	NSCollectionsOwner  = "collections:owner"
	NSUser              = "user"
	NSSearch            = "search"
)

// DefaultTTLs returns the TTL of every namespace. Listings tolerate more
// staleness than single entities.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		NSRecipe:            5 * time.Minute,
		NSRecipesPublic:     2 * time.Minute,
		NSRecipesByAuthor:   3 * time.Minute,
		NSRecipesByCategory: 3 * time.Minute,
		NSCollection:        5 * time.Minute,
		NSCollectionsOwner:  3 * time.Minute,
		NSUser:              5 * time.Minute,
		NSSearch:            3 * time.Minute,
	}
}

// DefaultTTL applies to namespaces without a configured TTL.
const DefaultTTL = 5 * time.Minute

// Eviction reasons reported to Metrics.
const (
	ReasonExpired     = "expired"
	ReasonInvalidated = "invalidated"
	ReasonCleared     = "cleared"
)

// Metrics receives cache events per namespace.
type Metrics interface {
	CacheHit(ns string)
	CacheMiss(ns string)
	CacheEvict(ns, reason string, n int)
}

type nopMetrics struct{}

func (nopMetrics) CacheHit(string)                {}
func (nopMetrics) CacheMiss(string)               {}
func (nopMetrics) CacheEvict(string, string, int) {}

type entry struct {
	ns        string
	value     any
	createdAt time.Time
	ttl       time.Duration
	timer     Timer
}

// expired is the single expiry rule: an entry is served while
// now - createdAt <= ttl.
func expired(e *entry, now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// untilExpiry is the shortest wait after which expired(e, now) holds.
func untilExpiry(e *entry, now time.Time) time.Duration {
	return e.ttl - now.Sub(e.createdAt) + time.Nanosecond
}

// Cache is safe for concurrent use.
type Cache struct {
	clock   Clock
	log     *zap.Logger
	metrics Metrics

	mu      sync.Mutex
	ttls    map[string]time.Duration
	entries map[string]*entry
	keys    *btree.BTreeG[string]
	// gens counts the invalidations of each namespace.
	gens map[string]uint64
}

type Option func(*Cache)

// WithClock replaces the wall clock, typically with a FakeClock.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithNamespace sets the TTL of a namespace.
func WithNamespace(ns string, ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttls[ns] = ttl
	}
}

// WithTTLs sets the TTL of several namespaces.
func WithTTLs(ttls map[string]time.Duration) Option {
	return func(c *Cache) {
		for ns, ttl := range ttls {
			c.ttls[ns] = ttl
		}
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		clock:   realClock{},
		log:     zap.NewNop(),
		metrics: nopMetrics{},
		ttls:    DefaultTTLs(),
		entries: make(map[string]*entry),
		keys:    btree.NewOrderedG[string](16),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func fullKey(ns, key string) string {
	return ns + ":" + key
}

// TTL returns the TTL of ns.
func (c *Cache) TTL(ns string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttlLocked(ns)
}

func (c *Cache) ttlLocked(ns string) time.Duration {
	if ttl, ok := c.ttls[ns]; ok {
		return ttl
	}
	return DefaultTTL
}

// Get returns the value under ns and key if it has not expired.
func (c *Cache) Get(ns, key string) (any, bool) {
	k := fullKey(ns, key)
	c.mu.Lock()
	e, ok := c.entries[k]
	if ok && expired(e, c.clock.Now()) {
		c.removeLocked(k, e)
		ok = false
		c.metrics.CacheEvict(ns, ReasonExpired, 1)
	}
	c.mu.Unlock()
	if !ok {
		c.metrics.CacheMiss(ns)
		return nil, false
	}
	c.metrics.CacheHit(ns)
	return e.value, true
}

// Set stores value under ns and key with the namespace's TTL.
func (c *Cache) Set(ns, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(ns, key, value, c.ttlLocked(ns))
}

// SetTTL stores value with an explicit TTL.
func (c *Cache) SetTTL(ns, key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(ns, key, value, ttl)
}

func (c *Cache) setLocked(ns, key string, value any, ttl time.Duration) {
	k := fullKey(ns, key)
	if old, ok := c.entries[k]; ok {
		old.timer.Stop()
	}
	e := &entry{ns: ns, value: value, createdAt: c.clock.Now(), ttl: ttl}
	e.timer = c.clock.AfterFunc(untilExpiry(e, e.createdAt), c.expireFunc(k, e))
	c.entries[k] = e
	c.keys.ReplaceOrInsert(k)
}

// expireFunc evicts e when its timer fires, unless e was replaced or the
// timer fired before the entry expired, in which case it is rescheduled.
func (c *Cache) expireFunc(k string, e *entry) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.entries[k] != e {
			return
		}
		now := c.clock.Now()
		if !expired(e, now) {
			e.timer = c.clock.AfterFunc(untilExpiry(e, now), c.expireFunc(k, e))
			return
		}
		c.removeLocked(k, e)
		c.metrics.CacheEvict(e.ns, ReasonExpired, 1)
	}
}

func (c *Cache) removeLocked(k string, e *entry) {
	e.timer.Stop()
	delete(c.entries, k)
	c.keys.Delete(k)
}

// Invalidate removes a single entry and cancels its timer.
func (c *Cache) Invalidate(ns, key string) {
	k := fullKey(ns, key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[ns]++
	if e, ok := c.entries[k]; ok {
		c.removeLocked(k, e)
		c.metrics.CacheEvict(ns, ReasonInvalidated, 1)
	}
}

// Clear removes every entry of ns and returns how many were removed.
func (c *Cache) Clear(ns string) int {
	prefix := ns + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[ns]++
	var keys []string
	c.keys.AscendGreaterOrEqual(prefix, func(k string) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		keys = append(keys, k)
		return true
	})
	for _, k := range keys {
		c.removeLocked(k, c.entries[k])
	}
	if len(keys) > 0 {
		c.metrics.CacheEvict(ns, ReasonCleared, len(keys))
		c.log.Debug("cache namespace cleared", zap.String("namespace", ns), zap.Int("entries", len(keys)))
	}
	return len(keys)
}

// Len returns the number of stored entries, including expired entries not
// yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close removes every entry and stops all timers.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		c.removeLocked(k, e)
	}
}

func (c *Cache) generation(ns string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[ns]
}

// setIfGeneration stores value unless ns was invalidated since gen was
// read.
func (c *Cache) setIfGeneration(ns, key string, value any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[ns] != gen {
		return false
	}
	c.setLocked(ns, key, value, c.ttlLocked(ns))
	return true
}

// GetOrSet returns the cached value of ns and key, or calls fetch, caches
// its result and returns it. A fetch error is returned and nothing is
// cached. fetch runs without holding the cache lock, so concurrent misses
// may each call it. A result is not cached if the namespace was
// invalidated or cleared while fetch ran, since it may predate that write.
func GetOrSet[V any](ctx context.Context, c *Cache, ns, key string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(ns, key); ok {
		if typed, ok := v.(V); ok {
			return typed, nil
		}
		c.log.Warn("cached value has unexpected type, refetching",
			zap.String("namespace", ns), zap.String("key", key))
	}
	gen := c.generation(ns)
	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if !c.setIfGeneration(ns, key, v, gen) {
		c.log.Debug("namespace invalidated during fetch, not caching",
			zap.String("namespace", ns), zap.String("key", key))
	}
	return v, nil
}
