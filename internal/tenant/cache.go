package tenant

import (
	"container/list"
	"sync"
	"time"
)

// cache is a thread-safe LRU of resolved tenants with a per-entry TTL.
type cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	tenant    Tenant
	expiresAt time.Time
}

func newCache(capacity int, ttl time.Duration) *cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns a live entry and marks it most recently used.
func (c *cache) get(siteID string) (Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[siteID]
	if !ok {
		return Tenant{}, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.ttl > 0 && !c.now().Before(entry.expiresAt) {
		delete(c.entries, siteID)
		c.order.Remove(elem)
		return Tenant{}, false
	}

	c.order.MoveToFront(elem)
	return entry.tenant, true
}

// put adds or refreshes an entry, evicting the least recently used if full.
func (c *cache) put(t Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if elem, ok := c.entries[t.SiteID]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.tenant = t
		entry.expiresAt = expiresAt
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			delete(c.entries, oldest.Value.(*cacheEntry).tenant.SiteID)
			c.order.Remove(oldest)
		}
	}

	c.entries[t.SiteID] = c.order.PushFront(&cacheEntry{tenant: t, expiresAt: expiresAt})
}

func (c *cache) invalidate(siteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[siteID]; ok {
		delete(c.entries, siteID)
		c.order.Remove(elem)
	}
}

// keys returns the cached site ids, most recently used first.
func (c *cache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*cacheEntry).tenant.SiteID)
	}
	return out
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
