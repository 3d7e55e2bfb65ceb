package summarizer

import (
	"container/list"
	"sync"
	"time"
)

// summaryCache is a bounded LRU of summaries keyed by content hash. Each
// entry carries its own expiry; expired entries are dropped on access and
// whenever a new entry is stored.
type summaryCache struct {
	mu       sync.Mutex
	byKey    map[string]*list.Element
	lru      *list.List
	capacity int
}

type cachedSummary struct {
	key       string
	text      string
	expiresAt time.Time
}

func (s *cachedSummary) expired(now time.Time) bool {
	return now.After(s.expiresAt)
}

// newSummaryCache returns nil when caching is disabled; a nil cache misses
// on every get and ignores every set.
func newSummaryCache(capacity int) *summaryCache {
	if capacity <= 0 {
		return nil
	}

	return &summaryCache{
		byKey:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
		capacity: capacity,
	}
}

func (c *summaryCache) get(key string, now time.Time) (string, bool) {
	if c == nil || key == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.byKey[key]
	if !found {
		return "", false
	}

	cached, ok := elem.Value.(*cachedSummary)
	if !ok || cached.expired(now) {
		c.drop(key, elem)

		return "", false
	}

	c.lru.MoveToFront(elem)

	return cached.text, true
}

func (c *summaryCache) set(key string, text string, expiresAt time.Time, now time.Time) {
	if c == nil || key == "" || text == "" || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.byKey[key]; found {
		if cached, ok := elem.Value.(*cachedSummary); ok {
			cached.text = text
			cached.expiresAt = expiresAt
			c.lru.MoveToFront(elem)

			return
		}

		c.drop(key, elem)
	}

	c.byKey[key] = c.lru.PushFront(&cachedSummary{key: key, text: text, expiresAt: expiresAt})

	c.pruneLocked(now)
}

func (c *summaryCache) len() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.byKey)
}

// pruneLocked removes expired or malformed entries, then trims the least
// recently used ones down to capacity.
func (c *summaryCache) pruneLocked(now time.Time) {
	for key, elem := range c.byKey {
		if cached, ok := elem.Value.(*cachedSummary); !ok || cached.expired(now) {
			c.drop(key, elem)
		}
	}

	for len(c.byKey) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			return
		}

		key := ""
		if cached, ok := oldest.Value.(*cachedSummary); ok {
			key = cached.key
		}
		c.drop(key, oldest)
	}
}

func (c *summaryCache) drop(key string, elem *list.Element) {
	delete(c.byKey, key)
	c.lru.Remove(elem)
}
