package texture

import (
	"image"
	"sort"
	"sync"
)

// Resolver resolves a model-relative texture name to a decoded image.
type Resolver interface {
	Resolve(texName string) *image.NRGBA
}

// ToonResolver additionally resolves the shared toon ramps.
type ToonResolver interface {
	Resolver
	ResolveToon(n int) *image.NRGBA
}

// Cache is a concurrency-safe texture cache over a model index and an
// optional directory of shared toon ramps.
type Cache struct {
	mu     sync.RWMutex
	items  map[string]*image.NRGBA // nil value: load attempted and failed
	misses map[string]struct{}
	index  *Index
	toons  *Index
}

// NewCache creates a texture cache. toons may be nil.
func NewCache(index, toons *Index) *Cache {
	return &Cache{
		items:  make(map[string]*image.NRGBA),
		misses: make(map[string]struct{}),
		index:  index,
		toons:  toons,
	}
}

// Resolve loads and caches a texture by model-relative name. Returns nil
// if the file is missing or cannot be decoded.
func (c *Cache) Resolve(texName string) *image.NRGBA {
	return c.lookup(c.index, texName)
}

// ResolveToon loads shared toon ramp n. Returns nil without a toon index.
func (c *Cache) ResolveToon(n int) *image.NRGBA {
	if c.toons == nil || n < 0 {
		return nil
	}
	return c.lookup(c.toons, ToonName(n))
}

func (c *Cache) lookup(idx *Index, name string) *image.NRGBA {
	if idx == nil {
		return nil
	}
	path, ok := idx.ResolvePath(name)
	if !ok {
		c.miss(name)
		return nil
	}

	c.mu.RLock()
	img, exists := c.items[path]
	c.mu.RUnlock()
	if exists {
		return img
	}

	img, err := LoadTexture(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, exists := c.items[path]; exists {
		return cached
	}
	if err != nil {
		c.misses[name] = struct{}{}
	}
	c.items[path] = img
	return img
}

func (c *Cache) miss(name string) {
	c.mu.Lock()
	c.misses[name] = struct{}{}
	c.mu.Unlock()
}

// Misses returns the names that could not be found or decoded, sorted.
func (c *Cache) Misses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.misses))
	for name := range c.misses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
