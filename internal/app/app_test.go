package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/config"
	"github.com/alanyoungcy/launchpad/internal/nonce"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Metrics.Enabled = false
	return &cfg
}

func TestWire_MemoryFallbacks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, cleanup, err := Wire(context.Background(), testConfig(), logger)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.Ledger{}, deps.Ledger)
	assert.IsType(t, &memory.Bus{}, deps.Bus)
	assert.IsType(t, &memory.RateLimiter{}, deps.RateLimiter)
	assert.Nil(t, deps.MarketCache)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.Notifier, "no senders configured")
	assert.Empty(t, deps.Health)
}

func TestWire_NotifierWhenSenderConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/webhook"
	deps, cleanup, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, deps.Notifier)
	assert.True(t, deps.Notifier.Enabled("launch"))
	assert.False(t, deps.Notifier.Enabled("archive"))
}

func TestBuildExecutor_UsesConfiguredDomain(t *testing.T) {
	cfg := testConfig()
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	deps, cleanup, err := Wire(context.Background(), cfg, a.logger)
	require.NoError(t, err)
	defer cleanup()

	exec, err := a.buildExecutor(deps, nonce.NewRegistry(deps.Ledger))
	require.NoError(t, err)
	d := exec.CreateDomain()
	assert.Equal(t, "Launchpad", d.Name)
	assert.Equal(t, int64(31337), d.ChainID.Int64())
	assert.Equal(t, cfg.Signing.Factory, d.VerifyingContract.Hex())
}

func TestArchiveMode_RequiresArchiver(t *testing.T) {
	cfg := testConfig()
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := a.ArchiveMode(context.Background(), &Dependencies{})
	assert.ErrorContains(t, err, "no archiver")
}
