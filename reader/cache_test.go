package reader

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestCachePrefixAndLength(t *testing.T) {
	c := NewReadCache(4, time.Minute)
	c.Put(0x1000, []byte{1, 2, 3, 4})

	got, ok := c.Get(0x1000, 2)
	if !ok {
		t.Fatal("Get prefix missed")
	}
	if diff := cmp.Diff([]byte{1, 2}, got); diff != "" {
		t.Errorf("Get prefix mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Get(0x1000, 5); ok {
		t.Error("Get longer than the entry hit")
	}
	if _, ok := c.Get(0x1001, 1); ok {
		t.Error("Get at an interior address hit")
	}

	got[0] = 99
	again, _ := c.Get(0x1000, 1)
	if again[0] != 1 {
		t.Error("Get returned an alias of the cached data")
	}
}

func TestCacheEvictsOldestInsertion(t *testing.T) {
	c := NewReadCache(2, time.Minute)
	c.Put(0x1, []byte{1})
	c.Put(0x2, []byte{2})
	c.Get(0x1, 1) // lookups do not refresh
	c.Put(0x3, []byte{3})

	if _, ok := c.Get(0x1, 1); ok {
		t.Error("oldest insertion survived eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	c.Put(0x2, []byte{22}) // re-insert refreshes
	c.Put(0x4, []byte{4})
	if _, ok := c.Get(0x3, 1); ok {
		t.Error("0x3 should have been evicted after 0x2 was refreshed")
	}
	if got, ok := c.Get(0x2, 1); !ok || got[0] != 22 {
		t.Errorf("refreshed entry = %v, %v", got, ok)
	}
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := NewReadCache(4, time.Second)
	c.now = clock.now

	c.Put(0x1000, []byte{1})
	clock.t = clock.t.Add(999 * time.Millisecond)
	if _, ok := c.Get(0x1000, 1); !ok {
		t.Error("entry expired early")
	}
	clock.t = clock.t.Add(time.Millisecond)
	if _, ok := c.Get(0x1000, 1); ok {
		t.Error("entry served at max age")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, Len() = %d", c.Len())
	}
}

func TestCacheInvalidateAndDisable(t *testing.T) {
	c := NewReadCache(8, time.Minute)
	c.Put(0x1000, make([]byte, 0x10))
	c.Put(0x2000, make([]byte, 0x10))
	c.Put(0x2010, make([]byte, 0x10))

	c.Invalidate(0x200F, 1)
	if _, ok := c.Get(0x2000, 1); ok {
		t.Error("overlapping entry survived Invalidate")
	}
	if _, ok := c.Get(0x2010, 1); !ok {
		t.Error("adjacent entry was invalidated")
	}
	if _, ok := c.Get(0x1000, 1); !ok {
		t.Error("unrelated entry was invalidated")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}

	off := NewReadCache(0, time.Minute)
	off.Put(0x1, []byte{1})
	if _, ok := off.Get(0x1, 1); ok || off.Len() != 0 {
		t.Error("zero-capacity cache stored data")
	}
}
