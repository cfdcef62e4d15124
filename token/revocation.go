package token

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RevokedTokenCache tracks revoked signed tokens by jti until their natural
// expiry. Reference tokens are revoked by store removal instead.
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
}

// InMemoryRevokedTokenCache keeps revocations in a TTL cache; entries lapse
// when the token they refer to would have expired anyway.
type InMemoryRevokedTokenCache struct {
	cache *gocache.Cache
}

func NewInMemoryRevokedTokenCache() *InMemoryRevokedTokenCache {
	return &InMemoryRevokedTokenCache{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}
	c.cache.Set(jti, struct{}{}, ttl)
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	_, exists := c.cache.Get(jti)
	return exists
}
