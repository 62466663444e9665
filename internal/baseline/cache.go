package baseline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// Fingerprint derives a cache key from the set of input paths. The key
// changes whenever a historical raster is added or removed.
func Fingerprint(kind Kind, paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(kind.String()))
	for _, p := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a thread-safe LRU of baselines keyed by Fingerprint. Baselines
// are immutable so cached values are shared without copying.
type Cache struct {
	capacity int
	mu       sync.Mutex
	items    map[string]*node
	newest   *node
	oldest   *node
}

type node struct {
	key        string
	base       Baseline
	prev, next *node
}

// NewCache returns a cache holding at most capacity baselines.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{capacity: capacity, items: make(map[string]*node)}
}

// Get returns the cached baseline for key.
func (c *Cache) Get(key string) (Baseline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[key]
	if !ok {
		return Baseline{}, false
	}
	c.promote(n)
	return n.base, true
}

// Put stores b under key, evicting the least recently used entry when full.
func (c *Cache) Put(key string, b Baseline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.items[key]; ok {
		n.base = b
		c.promote(n)
		return
	}
	n := &node{key: key, base: b}
	c.items[key] = n
	c.pushFront(n)
	if len(c.items) > c.capacity {
		victim := c.oldest
		c.unlink(victim)
		delete(c.items, victim.key)
	}
}

// Len returns the number of cached baselines.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) promote(n *node) {
	if n == c.newest {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *Cache) pushFront(n *node) {
	n.prev, n.next = nil, c.newest
	if c.newest != nil {
		c.newest.prev = n
	}
	c.newest = n
	if c.oldest == nil {
		c.oldest = n
	}
}

func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.newest = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.oldest = n.prev
	}
}

// keyOf joins the identifying parts of a series request.
func keyOf(parts ...string) string { return strings.Join(parts, "|") }
