package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cache_hits_total",
		Help: "Total number of cache hits",
	})
	misses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_cache_misses_total",
		Help: "Total number of cache misses",
	})
	size = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_cache_size",
		Help: "Current number of cached entries",
	})
)

type entry struct {
	key      string
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

// Cache is a small TTL-aware LRU keyed by string. Expired entries are
// dropped lazily on access and whenever capacity forces an eviction.
type Cache struct {
	mu        sync.Mutex
	items     map[string]*list.Element
	evictList *list.List
	capacity  int
}

func NewCache(capacity int) *Cache {
	return &Cache{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		capacity:  capacity,
	}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		misses.Inc()
		return nil, false
	}
	e := element.Value.(*entry)
	if e.ttl > 0 && time.Since(e.storedAt) > e.ttl {
		c.remove(element)
		misses.Inc()
		return nil, false
	}
	c.evictList.MoveToFront(element)
	hits.Inc()
	return e.value, true
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		c.evictList.MoveToFront(element)
		e := element.Value.(*entry)
		e.value = value
		e.storedAt = time.Now()
		e.ttl = ttl
		return
	}

	element := c.evictList.PushFront(&entry{
		key:      key,
		value:    value,
		storedAt: time.Now(),
		ttl:      ttl,
	})
	c.items[key] = element
	size.Inc()

	if c.evictList.Len() > c.capacity {
		if back := c.evictList.Back(); back != nil {
			c.remove(back)
		}
	}
}

func (c *Cache) remove(element *list.Element) {
	c.evictList.Remove(element)
	delete(c.items, element.Value.(*entry).key)
	size.Dec()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}
