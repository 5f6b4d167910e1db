package tab

import "sync"

// Collection is the owning store of live tab records, keyed by tab id.
type Collection struct {
	mu   sync.RWMutex
	tabs map[string]*Tab
}

func NewCollection() *Collection {
	return &Collection{tabs: make(map[string]*Tab)}
}

func (c *Collection) Add(t *Tab) {
	c.mu.Lock()
	c.tabs[t.ID()] = t
	c.mu.Unlock()
}

func (c *Collection) Get(id string) (*Tab, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tabs[id]
	return t, ok
}

func (c *Collection) Remove(id string) {
	c.mu.Lock()
	delete(c.tabs, id)
	c.mu.Unlock()
}

func (c *Collection) List() []*Tab {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Tab, 0, len(c.tabs))
	for _, t := range c.tabs {
		out = append(out, t)
	}
	return out
}

func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tabs)
}
