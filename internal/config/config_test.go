package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	tpl, err := cfg.Template()
	require.NoError(t, err)
	assert.Equal(t, "100000000000", tpl.Curve.BasePrice.String())
	assert.Equal(t, "10000000000000000000", tpl.FundingGoal.String())
	assert.Equal(t, int64(30), tpl.Fees.TradingFeeBps)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Store.Backend = "sqlite"
	cfg.Signing.Factory = "nope"
	cfg.Market.Slope = "1.5"
	cfg.Server.Relayers = []RelayerConfig{
		{Address: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", APIKey: "k", Secret: "s"},
		{Address: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", APIKey: "k", Secret: "s"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown backend "sqlite"`,
		`factory "nope"`,
		`slope "1.5"`,
		"duplicate api_key",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ArchiveNeedsStorage(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires s3.enabled")
	assert.Contains(t, err.Error(), "requires the postgres store backend")

	cfg.S3.Enabled = true
	cfg.Store.Backend = "postgres"
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "launchpad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[server]
port = 9100
admin_api_key = "admin"

[[server.relayers]]
address = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
api_key = "relayer-1"
secret = "from-file"
passphrase = "pp"

[archive]
interval = "15m"

[market]
trading_fee_bps = 50
`), 0o600))

	t.Setenv("LAUNCHPAD_SERVER_PORT", "9200")
	t.Setenv("LAUNCHPAD_RELAYER_API_KEY", "relayer-1")
	t.Setenv("LAUNCHPAD_RELAYER_ADDRESS", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	t.Setenv("LAUNCHPAD_RELAYER_SECRET", "from-env")
	t.Setenv("LAUNCHPAD_NOTIFY_EVENTS", "launch, halt ,archive")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Archive.Interval.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Archive.Retention.Duration, "default kept")
	assert.Equal(t, int64(50), cfg.Market.TradingFeeBps)
	require.Len(t, cfg.Server.Relayers, 1)
	assert.Equal(t, "from-env", cfg.Server.Relayers[0].Secret)
	assert.Equal(t, []string{"launch", "halt", "archive"}, cfg.Notify.Events)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Server.AdminAPIKey = "admin"
	cfg.Server.Relayers = []RelayerConfig{{APIKey: "k", Secret: "s", Passphrase: "p"}}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.AdminAPIKey)
	assert.Equal(t, "***", out.Server.Relayers[0].Secret)
	assert.Equal(t, "k", out.Server.Relayers[0].APIKey)
	assert.Equal(t, "", out.S3.SecretKey, "empty values stay empty")

	assert.Equal(t, "s", cfg.Server.Relayers[0].Secret, "original untouched")
}
