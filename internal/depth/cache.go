package depth

import (
	"sync"

	"github.com/Faultbox/meshdepth/pkg/formats"
)

// MeshCache keeps raw meshes loaded by the bounds pass so the range and
// emission passes skip re-parsing them.
//
// Eviction policy: entries are admitted until the capacity is reached (0
// means unlimited, negative disables the cache) and live until the emission
// pass has written every angle of their frame, when Evict drops them. Frames
// that did not fit are reloaded from the store on every pass. Cached meshes
// are never mutated; each pass normalizes a fresh copy.
type MeshCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*formats.Mesh
	hits     int
	misses   int
}

// NewMeshCache creates a cache holding up to capacity meshes.
func NewMeshCache(capacity int) *MeshCache {
	return &MeshCache{capacity: capacity, entries: make(map[string]*formats.Mesh)}
}

// Get returns the cached mesh for name.
func (c *MeshCache) Get(name string) (*formats.Mesh, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[name]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return m, ok
}

// Put admits a mesh if there is room and reports whether it was stored.
func (c *MeshCache) Put(name string, m *formats.Mesh) bool {
	if c == nil || c.capacity < 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; !ok && c.capacity > 0 && len(c.entries) >= c.capacity {
		return false
	}
	c.entries[name] = m
	return true
}

// Evict drops the mesh for name.
func (c *MeshCache) Evict(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Len returns the number of cached meshes.
func (c *MeshCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts.
func (c *MeshCache) Stats() (hits, misses int) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
