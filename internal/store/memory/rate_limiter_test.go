package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "relayer:a", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "relayer:a", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "relayer:b", 3, time.Hour)
	assert.True(t, ok, "keys have separate budgets")

	ok, _ = rl.Allow(ctx, "relayer:a", 0, time.Hour)
	assert.True(t, ok, "zero limit disables limiting")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx, "k"))
}
