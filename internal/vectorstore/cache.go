package vectorstore

import (
	"sync"

	"github.com/philippgille/chromem-go"
)

// collectionCache holds open collection handles. When full, the entry that
// was inserted first is dropped; eviction never touches stored data.
type collectionCache struct {
	mu       sync.Mutex
	capacity int
	handles  map[string]*chromem.Collection
	order    []string
}

func newCollectionCache(capacity int) *collectionCache {
	if capacity < 1 {
		capacity = 1
	}
	return &collectionCache{
		capacity: capacity,
		handles:  make(map[string]*chromem.Collection, capacity),
	}
}

func (c *collectionCache) get(name string) (*chromem.Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.handles[name]
	return coll, ok
}

// getOrLoad returns the cached handle or inserts the one load produces.
// The lock is held across load so two callers never create the same
// collection twice.
func (c *collectionCache) getOrLoad(name string, load func() (*chromem.Collection, error)) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if coll, ok := c.handles[name]; ok {
		return coll, nil
	}

	coll, err := load()
	if err != nil {
		return nil, err
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.handles, oldest)
	}
	c.handles[name] = coll
	c.order = append(c.order, name)
	return coll, nil
}

func (c *collectionCache) remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handles[name]; !ok {
		return
	}
	delete(c.handles, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *collectionCache) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}
