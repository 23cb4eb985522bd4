package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is an IdentityCache shared by every server instance.
// Each identity is stored under identity:<user>; the sets identity:role:<role>
// and identity:org:<org> index user ids so role and org changes can be
// invalidated without scanning the keyspace.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed identity cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func identityKey(userID int64) string {
	return "identity:" + strconv.FormatInt(userID, 10)
}

func roleIndexKey(roleID int64) string {
	return "identity:role:" + strconv.FormatInt(roleID, 10)
}

func orgIndexKey(orgID int64) string {
	return "identity:org:" + strconv.FormatInt(orgID, 10)
}

// Get returns a cached identity. Redis errors are treated as misses so the
// caller falls back to the database.
func (c *RedisCache) Get(ctx context.Context, userID int64) (*Identity, bool) {
	data, err := c.client.Get(ctx, identityKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}

	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		c.client.Del(ctx, identityKey(userID))
		return nil, false
	}
	return &identity, true
}

func (c *RedisCache) Set(ctx context.Context, identity *Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	member := strconv.FormatInt(identity.UserID, 10)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, identityKey(identity.UserID), data, c.ttl)
		pipe.SAdd(ctx, roleIndexKey(identity.RoleID), member)
		pipe.Expire(ctx, roleIndexKey(identity.RoleID), c.ttl)
		pipe.SAdd(ctx, orgIndexKey(identity.OrgID), member)
		pipe.Expire(ctx, orgIndexKey(identity.OrgID), c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache identity: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, identityKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user %d: %w", userID, err)
	}
	return nil
}

func (c *RedisCache) InvalidateRole(ctx context.Context, roleID int64) error {
	return c.invalidateIndex(ctx, roleIndexKey(roleID))
}

func (c *RedisCache) InvalidateOrganization(ctx context.Context, orgID int64) error {
	return c.invalidateIndex(ctx, orgIndexKey(orgID))
}

func (c *RedisCache) invalidateIndex(ctx context.Context, indexKey string) error {
	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read %s: %w", indexKey, err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, member := range members {
		keys = append(keys, "identity:"+member)
	}
	keys = append(keys, indexKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", indexKey, err)
	}
	return nil
}
