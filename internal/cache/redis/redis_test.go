package redis

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// newTestClient connects to LAUNCHPAD_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LAUNCHPAD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LAUNCHPAD_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func randomAddress() common.Address {
	id := uuid.New()
	return common.BytesToAddress(id[:])
}

func TestMarketCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mc := NewMarketCache(c)

	addr := randomAddress()
	_, err := mc.Get(ctx, addr)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	m := domain.Market{
		Address:        addr,
		Name:           "Sloth",
		Symbol:         "SLTH",
		TokenID:        big.NewInt(1),
		TotalSupply:    big.NewInt(42),
		ReserveBalance: big.NewInt(7),
		Launching:      true,
	}
	require.NoError(t, mc.Set(ctx, m))

	got, err := mc.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "SLTH", got.Symbol)
	assert.Equal(t, 0, got.TotalSupply.Cmp(m.TotalSupply))

	require.NoError(t, mc.Invalidate(ctx, addr))
	_, err = mc.Get(ctx, addr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPriceHistory(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ph := NewPriceHistory(c)

	addr := randomAddress()
	base := time.Unix(1_800_000_000, 0)
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, ph.Record(ctx, addr, big.NewInt(100*i), base.Add(time.Duration(i)*time.Second)))
	}

	points, err := ph.Recent(ctx, addr, 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "300", points[0].Price.String())
	assert.Equal(t, "200", points[1].Price.String())
}

func TestLockManager(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)
	name := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, name, 10*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, name, 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, name, 10*time.Second)
	require.NoError(t, err)
	again()
}

func TestRateLimiter(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
