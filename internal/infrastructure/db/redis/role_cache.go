package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const roleCacheTTL = 30 * 24 * time.Hour

// RoleCache implements ports.RoleCache for one client.
// Key format: client:<client_key>:<key>
type RoleCache struct {
	client *redis.Client
	prefix string
}

// NewRoleCache scopes the cache to clientKey. Two clients never see each
// other's entries.
func NewRoleCache(client *redis.Client, clientKey string) *RoleCache {
	return &RoleCache{client: client, prefix: "client:" + clientKey + ":"}
}

func (c *RoleCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("role cache get: %w", err)
	}
	return v, true, nil
}

func (c *RoleCache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, c.prefix+key, value, roleCacheTTL).Err(); err != nil {
		return fmt.Errorf("role cache set: %w", err)
	}
	return nil
}

func (c *RoleCache) Remove(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("role cache remove: %w", err)
	}
	return nil
}
