package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked_jti:"

// RevocationCache is a Redis fast path for the authorization gate. Only a
// positive "revoked" answer short-circuits; a miss always falls through to
// the token store, which stays authoritative.
type RevocationCache struct {
	client redis.UniversalClient
}

// NewRevocationCache constructs a Redis-backed revocation cache.
func NewRevocationCache(client redis.UniversalClient) *RevocationCache {
	return &RevocationCache{client: client}
}

// MarkRevoked records the jti as revoked until the token would have expired
// anyway; after that the sweep makes the entry moot.
func (c *RevocationCache) MarkRevoked(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("cache revoked jti: %w", err)
	}
	return nil
}

// IsRevoked reports whether the jti is cached as revoked. Errors degrade to
// a miss so the store lookup decides.
func (c *RevocationCache) IsRevoked(ctx context.Context, jti string) bool {
	n, err := c.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false
	}
	return n > 0
}
