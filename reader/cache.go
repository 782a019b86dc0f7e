package reader

import (
	"time"

	"memprobe/process"

	"github.com/hashicorp/golang-lru/simplelru"
)

const (
	DefaultCacheEntries = 100
	DefaultCacheMaxAge  = time.Second
)

type cacheEntry struct {
	data     []byte
	inserted time.Time
}

// ReadCache keeps recently read buffers keyed by address. Lookups never
// refresh an entry, so eviction drops the oldest insertion; re-inserting an
// address refreshes both its data and its age.
type ReadCache struct {
	lru    *simplelru.LRU
	maxAge time.Duration
	now    func() time.Time
}

// NewReadCache creates a cache holding up to capacity entries for at most
// maxAge. A capacity of 0 disables caching.
func NewReadCache(capacity int, maxAge time.Duration) *ReadCache {
	c := &ReadCache{maxAge: maxAge, now: time.Now}
	if capacity > 0 {
		c.lru, _ = simplelru.NewLRU(capacity, nil)
	}
	return c
}

// Get returns a copy of the first size bytes cached at addr, when the entry is
// long enough and younger than the max age.
func (c *ReadCache) Get(addr process.ProcessMemoryAddress, size int) ([]byte, bool) {
	if c.lru == nil {
		return nil, false
	}
	v, ok := c.lru.Peek(addr)
	if !ok {
		return nil, false
	}

	entry := v.(cacheEntry)
	if len(entry.data) < size {
		return nil, false
	}
	if c.now().Sub(entry.inserted) >= c.maxAge {
		c.lru.Remove(addr)
		return nil, false
	}

	out := make([]byte, size)
	copy(out, entry.data)
	return out, true
}

// Put stores a copy of data at addr, evicting the oldest insertion when full.
func (c *ReadCache) Put(addr process.ProcessMemoryAddress, data []byte) {
	if c.lru == nil {
		return
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	c.lru.Add(addr, cacheEntry{data: stored, inserted: c.now()})
}

// Invalidate drops every entry whose cached span overlaps [addr, addr+size).
func (c *ReadCache) Invalidate(addr process.ProcessMemoryAddress, size int) {
	if c.lru == nil {
		return
	}
	end := addr.Add(process.ProcessMemorySize(size))
	for _, k := range c.lru.Keys() {
		key := k.(process.ProcessMemoryAddress)
		v, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		entryEnd := key.Add(process.ProcessMemorySize(len(v.(cacheEntry).data)))
		if key < end && entryEnd > addr {
			c.lru.Remove(key)
		}
	}
}

func (c *ReadCache) Clear() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

func (c *ReadCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
