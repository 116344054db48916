package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
	tags      []string
}

// MemoryTagCache is an in-process TagCache for single-instance deployments
// and tests. Values are stored JSON-encoded so readers never share memory.
type MemoryTagCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	tags    map[string]map[string]struct{}
	gens    map[string]int64
	now     func() time.Time
}

func NewMemoryTagCache() *MemoryTagCache {
	return &MemoryTagCache{
		entries: make(map[string]memoryEntry),
		tags:    make(map[string]map[string]struct{}),
		gens:    make(map[string]int64),
		now:     time.Now,
	}
}

func (c *MemoryTagCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.removeLocked(key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryTagCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration, tags ...string) error {
	if value == nil {
		return ErrNilValue
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
	entry := memoryEntry{raw: raw, tags: tags}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	for _, tag := range tags {
		members, ok := c.tags[tag]
		if !ok {
			members = make(map[string]struct{})
			c.tags[tag] = members
		}
		members[key] = struct{}{}
	}
	return nil
}

func (c *MemoryTagCache) Generation(_ context.Context, tag string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[tag], nil
}

func (c *MemoryTagCache) InvalidateTag(_ context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[tag]++

	for key := range c.tags[tag] {
		c.removeLocked(key)
	}
	delete(c.tags, tag)
	return nil
}

func (c *MemoryTagCache) removeLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, tag := range entry.tags {
		if members, ok := c.tags[tag]; ok {
			delete(members, key)
			if len(members) == 0 {
				delete(c.tags, tag)
			}
		}
	}
}
