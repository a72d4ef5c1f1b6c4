package tenants

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const resolutionTTL = 5 * time.Minute

// ResolutionCache keeps host→tenant lookups in Redis so every request does
// not round-trip to PostgreSQL. Misses and Redis failures both fall through
// to the store.
type ResolutionCache struct {
	redis *redis.Client
}

// NewResolutionCache creates a cache over an existing Redis client.
func NewResolutionCache(client *redis.Client) *ResolutionCache {
	return &ResolutionCache{redis: client}
}

func hostKey(domain string) string {
	return fmt.Sprintf("tenant:host:%s", domain)
}

// Get returns the cached resolution for domain, or nil on miss.
func (c *ResolutionCache) Get(ctx context.Context, domain string) *Resolved {
	cached, err := c.redis.Get(ctx, hostKey(domain)).Result()
	if err != nil {
		return nil
	}
	var resolved Resolved
	if err := json.Unmarshal([]byte(cached), &resolved); err != nil {
		return nil
	}
	return &resolved
}

// Set stores a resolution. Errors are ignored; the cache is best-effort.
func (c *ResolutionCache) Set(ctx context.Context, domain string, resolved *Resolved) {
	data, err := json.Marshal(resolved)
	if err != nil {
		return
	}
	c.redis.Set(ctx, hostKey(domain), data, resolutionTTL)
}

// InvalidateTenant drops every cached host entry pointing at the tenant's
// current slug and domain. Called after update, suspend and delete.
func (c *ResolutionCache) InvalidateTenant(ctx context.Context, tenant *Tenant) {
	keys := []string{hostKey(tenant.Slug)}
	if tenant.PrimaryDomain != nil {
		keys = append(keys, hostKey(*tenant.PrimaryDomain))
	}
	c.redis.Del(ctx, keys...)
}
