package cache

import (
	"context"
	"sync"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
)

// MemoryCache is a process-local ReferralCache. It stores copies so callers
// cannot mutate cached entries.
type MemoryCache struct {
	mu       sync.RWMutex
	entries  map[uint64]entity.ReferralCode
	versions map[uint64]uint64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:  make(map[uint64]entity.ReferralCode),
		versions: make(map[uint64]uint64),
	}
}

func (c *MemoryCache) Get(_ context.Context, userID uint64) (*entity.ReferralCode, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *MemoryCache) Put(_ context.Context, code *entity.ReferralCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[code.UserID] = *code
	c.versions[code.UserID]++
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	c.versions[userID]++
	return nil
}

func (c *MemoryCache) Version(_ context.Context, userID uint64) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.versions[userID], nil
}

// Fill stores code only when no Put or Invalidate happened since version was
// taken. It does not bump the version.
func (c *MemoryCache) Fill(_ context.Context, code *entity.ReferralCode, version uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[code.UserID] != version {
		return false, nil
	}
	c.entries[code.UserID] = *code
	return true, nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
