package storage

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/goclaw/mnemo/pkg/memory"
)

const cacheStripes = 64

// CacheConfig sizes the read cache.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
}

// HitRecorder receives cache lookup outcomes.
type HitRecorder interface {
	RecordCacheLookup(hit bool)
}

// CachedStore is a memory.Store with a read-through cache in front of
// GetMemory. Writes go to the backing store first and then refresh the
// cached copy. A per-key stripe lock keeps a slow miss from caching a value
// older than a concurrent write.
type CachedStore struct {
	memory.Store
	cache   *ristretto.Cache[string, *memory.Memory]
	stripes [cacheStripes]sync.Mutex
	hits    HitRecorder
}

var _ memory.Store = (*CachedStore)(nil)

// NewCachedStore wraps store. hits may be nil.
func NewCachedStore(store memory.Store, cfg CacheConfig, hits HitRecorder) (*CachedStore, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 32 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *memory.Memory]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: store, cache: cache, hits: hits}, nil
}

func (c *CachedStore) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &c.stripes[h.Sum32()%cacheStripes]
}

func cost(m *memory.Memory) int64 {
	return int64(256 + len(m.Content) + 4*len(m.Vector))
}

func (c *CachedStore) record(hit bool) {
	if c.hits != nil {
		c.hits.RecordCacheLookup(hit)
	}
}

func (c *CachedStore) store(m *memory.Memory) {
	c.cache.Set(m.ID, m.Clone(), cost(m))
	c.cache.Wait()
}

// GetMemory serves from the cache when it can.
func (c *CachedStore) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	if m, ok := c.cache.Get(id); ok {
		c.record(true)
		return m.Clone(), nil
	}
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	if m, ok := c.cache.Get(id); ok {
		c.record(true)
		return m.Clone(), nil
	}
	c.record(false)
	m, err := c.Store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(m)
	return m, nil
}

// PutMemory writes through to the backing store.
func (c *CachedStore) PutMemory(ctx context.Context, m *memory.Memory) error {
	mu := c.stripe(m.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := c.Store.PutMemory(ctx, m); err != nil {
		return err
	}
	c.store(m)
	return nil
}

// UpdateMemory writes through to the backing store.
func (c *CachedStore) UpdateMemory(ctx context.Context, id string, fn func(*memory.Memory) error) (*memory.Memory, error) {
	mu := c.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := c.Store.UpdateMemory(ctx, id, fn)
	if err != nil {
		c.cache.Del(id)
		return nil, err
	}
	c.store(m)
	return m, nil
}

// Close releases the cache and closes the backing store.
func (c *CachedStore) Close() error {
	c.cache.Close()
	return c.Store.Close()
}
