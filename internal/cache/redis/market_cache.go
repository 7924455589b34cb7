package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const marketTTL = 2 * time.Minute

// MarketCache implements domain.MarketCache with one JSON string per market.
//
// Key schema:
//
//	market:{address} - JSON encoded domain.Market
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying(), ttl: marketTTL}
}

// WithTTL overrides how long a snapshot stays cached.
func (mc *MarketCache) WithTTL(ttl time.Duration) *MarketCache {
	mc.ttl = ttl
	return mc
}

func marketKey(addr common.Address) string { return "market:" + addr.Hex() }

// Set stores a market snapshot.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Address.Hex(), err)
	}
	if err := mc.rdb.Set(ctx, marketKey(market.Address), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Address.Hex(), err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, addr common.Address) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(addr)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", addr.Hex(), err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", addr.Hex(), err)
	}
	return market, nil
}

// Invalidate drops the cached snapshot.
func (mc *MarketCache) Invalidate(ctx context.Context, addr common.Address) error {
	if err := mc.rdb.Del(ctx, marketKey(addr)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", addr.Hex(), err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
