package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LAUNCHPAD_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LAUNCHPAD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "LAUNCHPAD_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LAUNCHPAD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LAUNCHPAD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LAUNCHPAD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LAUNCHPAD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LAUNCHPAD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LAUNCHPAD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LAUNCHPAD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LAUNCHPAD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LAUNCHPAD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LAUNCHPAD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LAUNCHPAD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LAUNCHPAD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LAUNCHPAD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LAUNCHPAD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LAUNCHPAD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LAUNCHPAD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LAUNCHPAD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MarketTTL, "LAUNCHPAD_REDIS_MARKET_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LAUNCHPAD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LAUNCHPAD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LAUNCHPAD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LAUNCHPAD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LAUNCHPAD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LAUNCHPAD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LAUNCHPAD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LAUNCHPAD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LAUNCHPAD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LAUNCHPAD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LAUNCHPAD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "LAUNCHPAD_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimit, "LAUNCHPAD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LAUNCHPAD_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.MaxSkew, "LAUNCHPAD_SERVER_MAX_SKEW")
	applyRelayerEnv(cfg)

	// ── Signing ──
	setStr(&cfg.Signing.DomainName, "LAUNCHPAD_SIGNING_DOMAIN_NAME")
	setStr(&cfg.Signing.DomainVersion, "LAUNCHPAD_SIGNING_DOMAIN_VERSION")
	setInt64(&cfg.Signing.ChainID, "LAUNCHPAD_SIGNING_CHAIN_ID")
	setStr(&cfg.Signing.Factory, "LAUNCHPAD_SIGNING_FACTORY")

	// ── Market ──
	setStr(&cfg.Market.BasePrice, "LAUNCHPAD_MARKET_BASE_PRICE")
	setStr(&cfg.Market.Slope, "LAUNCHPAD_MARKET_SLOPE")
	setStr(&cfg.Market.SaleAmount, "LAUNCHPAD_MARKET_SALE_AMOUNT")
	setStr(&cfg.Market.MaxSupply, "LAUNCHPAD_MARKET_MAX_SUPPLY")
	setStr(&cfg.Market.FundingGoal, "LAUNCHPAD_MARKET_FUNDING_GOAL")
	setInt64(&cfg.Market.TradingFeeBps, "LAUNCHPAD_MARKET_TRADING_FEE_BPS")
	setInt64(&cfg.Market.ListingFeeBps, "LAUNCHPAD_MARKET_LISTING_FEE_BPS")
	setStr(&cfg.Market.CreationFee, "LAUNCHPAD_MARKET_CREATION_FEE")

	// ── Launch ──
	setBool(&cfg.Launch.AutoMigrate, "LAUNCHPAD_LAUNCH_AUTO_MIGRATE")
	setStr(&cfg.Launch.LiquidityAddress, "LAUNCHPAD_LAUNCH_LIQUIDITY_ADDRESS")
	setStr(&cfg.Launch.FeeRecipient, "LAUNCHPAD_LAUNCH_FEE_RECIPIENT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LAUNCHPAD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "LAUNCHPAD_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "LAUNCHPAD_ARCHIVE_RETENTION")
	setInt(&cfg.Archive.Backfill, "LAUNCHPAD_ARCHIVE_BACKFILL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LAUNCHPAD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LAUNCHPAD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LAUNCHPAD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LAUNCHPAD_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "LAUNCHPAD_METRICS_ENABLED")
	setStr(&cfg.Metrics.ServiceName, "LAUNCHPAD_METRICS_SERVICE_NAME")

	// ── Top-level ──
	setStr(&cfg.Mode, "LAUNCHPAD_MODE")
	setStr(&cfg.LogLevel, "LAUNCHPAD_LOG_LEVEL")
}

// applyRelayerEnv adds one relayer from LAUNCHPAD_RELAYER_* variables, or
// replaces the configured relayer with the same API key.
func applyRelayerEnv(cfg *Config) {
	r := RelayerConfig{
		Address:    os.Getenv("LAUNCHPAD_RELAYER_ADDRESS"),
		APIKey:     os.Getenv("LAUNCHPAD_RELAYER_API_KEY"),
		Secret:     os.Getenv("LAUNCHPAD_RELAYER_SECRET"),
		Passphrase: os.Getenv("LAUNCHPAD_RELAYER_PASSPHRASE"),
	}
	if r.APIKey == "" {
		return
	}
	for i := range cfg.Server.Relayers {
		if cfg.Server.Relayers[i].APIKey == r.APIKey {
			cfg.Server.Relayers[i] = r
			return
		}
	}
	cfg.Server.Relayers = append(cfg.Server.Relayers, r)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
