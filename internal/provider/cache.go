package provider

import (
	"container/list"
	"sync"
)

// modelCache is a size-bounded LRU of models keyed by building id.
// A limit of zero or less keeps everything.
type modelCache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	items map[string]*list.Element
}

func newModelCache(limit int) *modelCache {
	return &modelCache{
		limit: limit,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *modelCache) get(id string) (*Model, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*Model), true
}

func (c *modelCache) put(m *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[m.BuildingID]; ok {
		el.Value = m
		c.order.MoveToFront(el)
		return
	}
	c.items[m.BuildingID] = c.order.PushFront(m)
	for c.limit > 0 && c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*Model).BuildingID)
	}
}

func (c *modelCache) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[id]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, id)
	return true
}

func (c *modelCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.items)
}

// info lists cached ids, most recently used first.
func (c *modelCache) info() CacheInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(*Model).BuildingID)
	}
	return CacheInfo{Count: len(ids), BuildingIDs: ids}
}
