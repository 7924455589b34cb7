package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// priceHistoryLen caps the number of points kept per market.
const priceHistoryLen = 500

// PriceHistory implements domain.PriceHistory with a sorted set per market,
// scored by Unix nanoseconds. Members are "{unixnano}:{price}" so repeated
// prices at different times stay distinct.
type PriceHistory struct {
	rdb *redis.Client
}

// NewPriceHistory creates a PriceHistory backed by the given Client.
func NewPriceHistory(c *Client) *PriceHistory {
	return &PriceHistory{rdb: c.Underlying()}
}

func priceKey(market common.Address) string {
	return "price:" + market.Hex()
}

// Record appends a price point and trims the set to its newest entries.
func (ph *PriceHistory) Record(ctx context.Context, market common.Address, price *big.Int, at time.Time) error {
	key := priceKey(market)
	ts := at.UnixNano()

	pipe := ph.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(ts),
		Member: strconv.FormatInt(ts, 10) + ":" + price.String(),
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -priceHistoryLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: record price %s: %w", market.Hex(), err)
	}
	return nil
}

// Recent returns up to limit points, newest first.
func (ph *PriceHistory) Recent(ctx context.Context, market common.Address, limit int) ([]domain.PricePoint, error) {
	if limit <= 0 || limit > priceHistoryLen {
		limit = priceHistoryLen
	}
	members, err := ph.rdb.ZRevRange(ctx, priceKey(market), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: recent prices %s: %w", market.Hex(), err)
	}

	points := make([]domain.PricePoint, 0, len(members))
	for _, member := range members {
		tsStr, priceStr, ok := strings.Cut(member, ":")
		if !ok {
			continue
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		price, ok := new(big.Int).SetString(priceStr, 10)
		if !ok {
			continue
		}
		points = append(points, domain.PricePoint{Price: price, At: time.Unix(0, ts).UTC()})
	}
	return points, nil
}

var _ domain.PriceHistory = (*PriceHistory)(nil)
