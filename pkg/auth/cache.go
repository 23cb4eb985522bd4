package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Invalidator drops cached identities after the data they were built from changes.
// Directory and role services call it after their transaction commits.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
	InvalidateRole(ctx context.Context, roleID int64) error
	InvalidateOrganization(ctx context.Context, orgID int64) error
}

// IdentityCache stores resolved identities keyed by user id
type IdentityCache interface {
	Invalidator
	Get(ctx context.Context, userID int64) (*Identity, bool)
	Set(ctx context.Context, identity *Identity) error
}

// LRUCache is an in-process IdentityCache with a fixed TTL.
// Suitable for single-instance deployments; use RedisCache when several
// instances must observe the same invalidations.
type LRUCache struct {
	cache *lru.LRU[int64, *Identity]
}

// NewLRUCache creates a cache holding at most size identities for ttl each
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 10000
	}
	return &LRUCache{
		cache: lru.NewLRU[int64, *Identity](size, nil, ttl),
	}
}

func (c *LRUCache) Get(ctx context.Context, userID int64) (*Identity, bool) {
	return c.cache.Get(userID)
}

func (c *LRUCache) Set(ctx context.Context, identity *Identity) error {
	c.cache.Add(identity.UserID, identity)
	return nil
}

func (c *LRUCache) InvalidateUser(ctx context.Context, userID int64) error {
	c.cache.Remove(userID)
	return nil
}

func (c *LRUCache) InvalidateRole(ctx context.Context, roleID int64) error {
	c.removeWhere(func(identity *Identity) bool { return identity.RoleID == roleID })
	return nil
}

func (c *LRUCache) InvalidateOrganization(ctx context.Context, orgID int64) error {
	c.removeWhere(func(identity *Identity) bool { return identity.OrgID == orgID })
	return nil
}

func (c *LRUCache) removeWhere(match func(*Identity) bool) {
	for _, key := range c.cache.Keys() {
		if identity, ok := c.cache.Peek(key); ok && match(identity) {
			c.cache.Remove(key)
		}
	}
}

// NoopCache disables caching; every request resolves from the database
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, userID int64) (*Identity, bool) { return nil, false }
func (NoopCache) Set(ctx context.Context, identity *Identity) error { return nil }
func (NoopCache) InvalidateUser(ctx context.Context, userID int64) error { return nil }
func (NoopCache) InvalidateRole(ctx context.Context, roleID int64) error { return nil }
func (NoopCache) InvalidateOrganization(ctx context.Context, orgID int64) error { return nil }
