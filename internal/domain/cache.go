package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketCache keeps recent market snapshots for the read endpoints.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, addr common.Address) (Market, error)
	Invalidate(ctx context.Context, addr common.Address) error
}

// PricePoint is the spot price of a market after one executed action.
type PricePoint struct {
	Price *big.Int
	At    time.Time
}

// PriceHistory records recent spot prices per market.
type PriceHistory interface {
	Record(ctx context.Context, market common.Address, price *big.Int, at time.Time) error
	Recent(ctx context.Context, market common.Address, limit int) ([]PricePoint, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Channel and stream names used for market events.
const (
	ChannelEvents       = "ch:events"
	ChannelMarketPrefix = "ch:market:"
	StreamEvents        = "stream:events"
)
