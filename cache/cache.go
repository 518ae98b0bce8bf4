package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type entry struct {
	key       string
	timestamp time.Time
}

// Cache is a bounded set of keys that expire after a fixed TTL; when full the
// oldest key is evicted. Branch controllers use it to drop inbound messages
// they have already handled.
type Cache struct {
	items      map[string]*list.Element
	evictList  *list.List
	mutex      sync.Mutex
	capacity   int
	ttl        time.Duration
	metrics    *cacheMetrics
	cancel     context.CancelFunc
	cleanupTTL time.Duration
	now        func() time.Time
}

type cacheMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	size   prometheus.Gauge
}

var (
	hits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedupe_cache_hits_total",
		Help: "Keys found in the dedupe cache",
	}, []string{"cache"})
	misses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedupe_cache_misses_total",
		Help: "Keys not found in the dedupe cache",
	}, []string{"cache"})
	size = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dedupe_cache_size",
		Help: "Current number of keys in the dedupe cache",
	}, []string{"cache"})
)

// New creates a cache labelled name in metrics. A ttl of zero keeps keys until evicted.
func New(name string, capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		capacity:  capacity,
		ttl:       ttl,
		metrics: &cacheMetrics{
			hits:   hits.WithLabelValues(name),
			misses: misses.WithLabelValues(name),
			size:   size.WithLabelValues(name),
		},
		cancel:     cancel,
		cleanupTTL: time.Minute,
		now:        time.Now,
	}
	if ttl > 0 {
		go c.startCleanup(ctx)
	}
	return c
}

// Seen reports whether key was already present, and records it either way.
func (c *Cache) Seen(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if element, exists := c.items[key]; exists {
		e := element.Value.(*entry)
		if !c.expired(e) {
			c.metrics.hits.Inc()
			return true
		}
		c.evictElement(element)
	}

	c.metrics.misses.Inc()
	c.items[key] = c.evictList.PushFront(&entry{key: key, timestamp: c.now()})
	c.metrics.size.Inc()
	if c.evictList.Len() > c.capacity {
		c.evictElement(c.evictList.Back())
	}
	return false
}

// contains reports whether key is present without recording it.
func (c *Cache) contains(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	element, exists := c.items[key]
	return exists && !c.expired(element.Value.(*entry))
}

func (c *Cache) expired(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.timestamp) > c.ttl
}

func (c *Cache) evictElement(element *list.Element) {
	c.evictList.Remove(element)
	delete(c.items, element.Value.(*entry).key)
	c.metrics.size.Dec()
}

// Clear forgets every key.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.metrics.size.Set(0)
}

// Stop ends the background expiry loop.
func (c *Cache) Stop() {
	c.cancel()
}

func (c *Cache) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// cleanupExpired walks from the oldest entry and stops at the first live one.
func (c *Cache) cleanupExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for element := c.evictList.Back(); element != nil; {
		e := element.Value.(*entry)
		if !c.expired(e) {
			return
		}
		prev := element.Prev()
		c.evictElement(element)
		element = prev
	}
}

func (c *Cache) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.evictList.Len()
}
