// Package config defines the launchpad configuration and its validation.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/ledger"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LAUNCHPAD_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Signing  SigningConfig  `toml:"signing"`
	Market   MarketConfig   `toml:"market"`
	Launch   LaunchConfig   `toml:"launch"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StoreConfig selects the ledger backend: "memory" or "postgres".
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Without Redis the engine
// runs single-node: in-process bus and rate limiter, no market cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	// MarketTTL bounds how long a market snapshot stays cached.
	MarketTTL duration `toml:"market_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey guards the admin routes. Empty disables them.
	AdminAPIKey string `toml:"admin_api_key"`
	// RateLimit is the number of relay calls one relayer may make per
	// RateWindow.
	RateLimit  int             `toml:"rate_limit"`
	RateWindow duration        `toml:"rate_window"`
	MaxSkew    duration        `toml:"max_skew"`
	Relayers   []RelayerConfig `toml:"relayers"`
}

// RelayerConfig is one relayer allowed to submit intents. Address is the
// account credited as the submitting relayer.
type RelayerConfig struct {
	Address    string `toml:"address"`
	APIKey     string `toml:"api_key"`
	Secret     string `toml:"secret"`
	Passphrase string `toml:"passphrase"`
}

// SigningConfig is the EIP-712 domain intents are signed under. Factory is
// the verifying contract for Create intents.
type SigningConfig struct {
	DomainName    string `toml:"domain_name"`
	DomainVersion string `toml:"domain_version"`
	ChainID       int64  `toml:"chain_id"`
	Factory       string `toml:"factory"`
}

// MarketConfig holds the curve and fee defaults for new markets. Amounts are
// base-unit integers written as strings.
type MarketConfig struct {
	BasePrice     string `toml:"base_price"`
	Slope         string `toml:"slope"`
	SaleAmount    string `toml:"sale_amount"`
	MaxSupply     string `toml:"max_supply"`
	FundingGoal   string `toml:"funding_goal"`
	TradingFeeBps int64  `toml:"trading_fee_bps"`
	ListingFeeBps int64  `toml:"listing_fee_bps"`
	CreationFee   string `toml:"creation_fee"`
}

// LaunchConfig controls migration to the liquidity venue.
type LaunchConfig struct {
	AutoMigrate      bool   `toml:"auto_migrate"`
	LiquidityAddress string `toml:"liquidity_address"`
	FeeRecipient     string `toml:"fee_recipient"`
}

// ArchiveConfig controls the cold-storage export of events.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
	// Backfill is how many windows before the current one a fresh process
	// revisits.
	Backfill int `toml:"backfill"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "launchpad",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			MarketTTL:  duration{2 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "launchpad-events",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   20,
			RateWindow:  duration{time.Second},
			MaxSkew:     duration{30 * time.Second},
		},
		Signing: SigningConfig{
			DomainName:    "Launchpad",
			DomainVersion: "1",
			ChainID:       31337,
			Factory:       "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		},
		Market: MarketConfig{
			BasePrice:     "100000000000",
			Slope:         "100000",
			SaleAmount:    "800000000000000000000000000",
			MaxSupply:     "1000000000000000000000000000",
			FundingGoal:   "10000000000000000000",
			TradingFeeBps: 30,
			ListingFeeBps: 100,
			CreationFee:   "100000000000000000",
		},
		Launch: LaunchConfig{
			AutoMigrate:      true,
			LiquidityAddress: "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
			FeeRecipient:     "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		},
		Archive: ArchiveConfig{
			Interval:  duration{time.Hour},
			Retention: duration{24 * time.Hour},
			Backfill:  24,
		},
		Notify: NotifyConfig{
			Events: []string{"launch", "halt"},
		},
		Metrics: MetricsConfig{
			Enabled:     true,
			ServiceName: "launchpad",
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// Template parses the market defaults.
func (c *Config) Template() (ledger.Template, error) {
	var errs []string
	parse := func(name, v string) *big.Int {
		x, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
		if !ok {
			errs = append(errs, fmt.Sprintf("market: %s %q is not an integer", name, v))
			return new(big.Int)
		}
		return x
	}
	t := ledger.Template{
		Curve: domain.CurveParams{
			BasePrice: parse("base_price", c.Market.BasePrice),
			Slope:     parse("slope", c.Market.Slope),
		},
		Fees: domain.FeeSchedule{
			TradingFeeBps: c.Market.TradingFeeBps,
			ListingFeeBps: c.Market.ListingFeeBps,
			CreationFee:   parse("creation_fee", c.Market.CreationFee),
		},
		SaleAmount:  parse("sale_amount", c.Market.SaleAmount),
		MaxSupply:   parse("max_supply", c.Market.MaxSupply),
		FundingGoal: parse("funding_goal", c.Market.FundingGoal),
	}
	if len(errs) > 0 {
		return ledger.Template{}, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return t, nil
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 and archive
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	archiving := c.Archive.Enabled || mode == "archive"
	if archiving {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if c.Store.Backend != "postgres" {
			errs = append(errs, "archive: requires the postgres store backend")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.Retention.Duration < 0 {
			errs = append(errs, "archive: retention must not be negative")
		}
		if c.Archive.Backfill < 0 {
			errs = append(errs, "archive: backfill must not be negative")
		}
	}

	// Signing
	if c.Signing.DomainName == "" {
		errs = append(errs, "signing: domain_name must not be empty")
	}
	if c.Signing.ChainID <= 0 {
		errs = append(errs, "signing: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Signing.Factory) {
		errs = append(errs, fmt.Sprintf("signing: factory %q is not an address", c.Signing.Factory))
	}

	// Market
	if t, err := c.Template(); err != nil {
		errs = append(errs, err.Error())
	} else if err := t.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Launch
	if !common.IsHexAddress(c.Launch.LiquidityAddress) {
		errs = append(errs, fmt.Sprintf("launch: liquidity_address %q is not an address", c.Launch.LiquidityAddress))
	}
	if !common.IsHexAddress(c.Launch.FeeRecipient) {
		errs = append(errs, fmt.Sprintf("launch: fee_recipient %q is not an address", c.Launch.FeeRecipient))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 1 || c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit and rate_window must be positive")
		}
		if c.Server.MaxSkew.Duration <= 0 {
			errs = append(errs, "server: max_skew must be positive")
		}
	}
	keys := make(map[string]bool, len(c.Server.Relayers))
	for i, r := range c.Server.Relayers {
		if !common.IsHexAddress(r.Address) {
			errs = append(errs, fmt.Sprintf("server: relayers[%d]: address %q is not an address", i, r.Address))
		}
		if r.APIKey == "" || r.Secret == "" {
			errs = append(errs, fmt.Sprintf("server: relayers[%d]: api_key and secret must be set", i))
		}
		if keys[r.APIKey] {
			errs = append(errs, fmt.Sprintf("server: relayers[%d]: duplicate api_key", i))
		}
		keys[r.APIKey] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
