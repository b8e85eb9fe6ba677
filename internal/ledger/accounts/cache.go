package accounts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const listingCacheKey = "ledger:accounts:listing"

// ListingCache keeps the full chart-of-accounts listing in redis so read-heavy
// endpoints skip the database between postings.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewListingCache(client *redis.Client, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ListingCache{client: client, ttl: ttl}
}

// Get returns the cached listing, if present and decodable.
func (c *ListingCache) Get(ctx context.Context) ([]Account, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, listingCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var out []Account
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set stores the listing. Failures are ignored; the cache is best effort.
func (c *ListingCache) Set(ctx context.Context, listing []Account) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(listing)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, listingCacheKey, payload, c.ttl).Err()
}

// Invalidate drops the cached listing after balances or structure change.
func (c *ListingCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, listingCacheKey).Err()
}
