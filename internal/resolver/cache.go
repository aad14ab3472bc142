package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/teemow/bookcal/internal/store"
)

// DefaultCacheTTL is how long a resolved identity is served from cache.
const DefaultCacheTTL = 5 * time.Minute

// Cache holds resolved identities per company.
type Cache interface {
	// Get returns a cached identity. ok is false on a miss or expired entry.
	Get(ctx context.Context, company string) (identity *store.Identity, ok bool)

	// Set stores an identity for the cache's TTL.
	Set(ctx context.Context, company string, identity *store.Identity)

	// Invalidate drops the entry for a company.
	Invalidate(ctx context.Context, company string)
}

type memoryEntry struct {
	identity  store.Identity
	expiresAt time.Time
}

// MemoryCache is a process-local Cache guarded by a mutex.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, company string) (*store.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[company]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, company)
		return nil, false
	}
	identity := entry.identity
	return &identity, true
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, company string, identity *store.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[company] = memoryEntry{identity: *identity, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, company string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, company)
}
