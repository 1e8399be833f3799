package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 60 * time.Second

// Key identifies one cached query. Equal field values are the same entry;
// every field takes part in equality.
type Key struct {
	Table    string
	Username string
	Role     string
	From     string
	To       string
	Keyword  string
	Field    string
}

type entry[V any] struct {
	value    V
	rowCount int
	captured time.Time
}

type Metrics struct {
	Hits          int64
	Misses        int64
	Refreshes     int64
	Invalidations int64
}

// Cache memoizes query results per Key. An entry is served until the TTL
// elapses or the live row count of its table grows past the count recorded
// when it was captured.
//
// The lock is never held across probe or produce. Concurrent misses of one
// key share a single load, and a load that started before an Invalidate of
// its table is returned to its callers but never stored.
type Cache[V any] struct {
	mu          sync.Mutex
	entries     map[Key]*entry[V]
	generations map[string]uint64
	loads       singleflight.Group
	ttl         time.Duration
	now         func() time.Time

	hits          atomic.Int64
	misses        atomic.Int64
	refreshes     atomic.Int64
	invalidations atomic.Int64
}

func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		entries:     make(map[Key]*entry[V]),
		generations: make(map[string]uint64),
		ttl:         ttl,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

// Get returns the cached value for key, calling produce to (re)build it when
// the entry is missing or stale. probe reports the live row count of the
// table. If probe fails while a value is cached, the cached value is served.
func (c *Cache[V]) Get(key Key, produce func() (V, error), probe func() (int, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return c.load(key, probe, produce)
	}

	count, err := probe()
	if err != nil {
		log.WithFields(log.Fields{"table": key.Table, "error": err}).Warn("row count probe failed, serving cached value")
		c.hits.Add(1)
		return e.value, nil
	}
	if c.now().Sub(e.captured) < c.ttl && count <= e.rowCount {
		c.hits.Add(1)
		return e.value, nil
	}
	log.WithFields(log.Fields{"table": key.Table, "cached": e.rowCount, "live": count}).Debug("cache entry stale, refreshing")
	c.refreshes.Add(1)
	return c.load(key, func() (int, error) { return count, nil }, produce)
}

// load runs probe then produce for key outside the lock, sharing the work
// with concurrent callers of the same key and table generation.
func (c *Cache[V]) load(key Key, probe func() (int, error), produce func() (V, error)) (V, error) {
	c.mu.Lock()
	gen := c.generations[key.Table]
	c.mu.Unlock()

	v, err, _ := c.loads.Do(fmt.Sprintf("%#v@%d", key, gen), func() (interface{}, error) {
		count, err := probe()
		if err != nil {
			return nil, err
		}
		value, err := produce()
		if err != nil {
			return nil, err
		}
		c.store(key, gen, count, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[V]) store(key Key, gen uint64, count int, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.Table] != gen {
		log.WithField("table", key.Table).Debug("table written during load, result not cached")
		return
	}
	c.entries[key] = &entry[V]{value: value, rowCount: count, captured: c.now()}
}

// Invalidate drops every entry of table, whatever its other key fields, and
// keeps loads already in flight from storing what they read.
func (c *Cache[V]) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[table]++
	n := 0
	for k := range c.entries {
		if k.Table == table {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.invalidations.Add(int64(n))
		log.WithFields(log.Fields{"table": table, "entries": n}).Debug("cache invalidated")
	}
}

// Len is the number of live entries, stale ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) Metrics() Metrics {
	return Metrics{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Refreshes:     c.refreshes.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
