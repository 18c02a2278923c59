// Package config defines the top-level configuration for the cross-venue
// arbitrage service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Trading    TradingConfig    `toml:"trading"`
	Matching   MatchingConfig   `toml:"matching"`
	Simulation SimulationConfig `toml:"simulation"`
	Retry      RetryConfig      `toml:"retry"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Store      StoreConfig      `toml:"store"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
	LogFormat  string           `toml:"log_format"`
}

// TradingConfig controls detection thresholds and execution behaviour.
type TradingConfig struct {
	// Mode is "simulated" or "live".
	Mode                 string   `toml:"mode"`
	MinSpread            float64  `toml:"min_spread"`
	MaxTradeSize         float64  `toml:"max_trade_size"`
	MaxPositionPerMarket float64  `toml:"max_position_per_market"`
	FeeRate              float64  `toml:"fee_rate"`
	ImbalanceThreshold   float64  `toml:"imbalance_threshold"`
	OrderTimeout         duration `toml:"order_timeout"`
	PollInterval         duration `toml:"poll_interval"`
	SettleDelay          duration `toml:"settle_delay"`
	Cooldown             duration `toml:"cooldown"`
	PriceFetchInterval   duration `toml:"price_fetch_interval"`
	MaxConcurrentPairs   int      `toml:"max_concurrent_pairs"`
}

// Live reports whether real orders are placed.
func (t TradingConfig) Live() bool {
	return strings.EqualFold(t.Mode, "live")
}

// MatchingConfig controls event matching and catalog refresh.
type MatchingConfig struct {
	MinSimilarity   int      `toml:"min_similarity"`
	TimeWindow      duration `toml:"time_window"`
	RefreshInterval duration `toml:"refresh_interval"`
	MaxCandidates   int      `toml:"max_candidates"`
	// PairsFile is an optional YAML file of pre-approved pairs imported at
	// startup.
	PairsFile string `toml:"pairs_file"`
}

// SimulationConfig tunes the simulated execution engine.
type SimulationConfig struct {
	SlippageMax            float64 `toml:"slippage_max"`
	PartialFillProbability float64 `toml:"partial_fill_probability"`
	StartingBalance        float64 `toml:"starting_balance"`
	ImbalancePenaltyRate   float64 `toml:"imbalance_penalty_rate"`
	// Seed fixes the random source; zero means time-seeded.
	Seed int64 `toml:"seed"`
}

// RetryConfig controls exponential backoff for venue requests.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BackoffBase duration `toml:"backoff_base"`
}

// WalletConfig holds the Polymarket wallet credentials used for API
// authentication.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and credentials.
type PolymarketConfig struct {
	ClobHost          string `toml:"clob_host"`
	GammaHost         string `toml:"gamma_host"`
	ChainID           int    `toml:"chain_id"`
	ApiKey            string `toml:"api_key"`
	ApiSecret         string `toml:"api_secret"`
	ApiPassphrase     string `toml:"api_passphrase"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	MarketLimit       int    `toml:"market_limit"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	MarketLimit       int    `toml:"market_limit"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `toml:"driver"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archives.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchiveCron      string   `toml:"archive_cron"`
	ArchiveRetention duration `toml:"archive_retention"`
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
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"` // requests per minute per client; 0 disables
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Mode:                 "simulated",
			MinSpread:            0.01,
			MaxTradeSize:         1000,
			MaxPositionPerMarket: 5000,
			FeeRate:              0.03,
			ImbalanceThreshold:   0.10,
			OrderTimeout:         duration{30 * time.Second},
			PollInterval:         duration{time.Second},
			SettleDelay:          duration{time.Second},
			Cooldown:             duration{5 * time.Second},
			PriceFetchInterval:   duration{5 * time.Second},
			MaxConcurrentPairs:   8,
		},
		Matching: MatchingConfig{
			MinSimilarity:   75,
			TimeWindow:      duration{24 * time.Hour},
			RefreshInterval: duration{5 * time.Minute},
			MaxCandidates:   10,
		},
		Simulation: SimulationConfig{
			SlippageMax:            0.005,
			PartialFillProbability: 0.1,
			StartingBalance:        10000,
			ImbalancePenaltyRate:   0.1,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffBase: duration{2 * time.Second},
		},
		Polymarket: PolymarketConfig{
			ClobHost:          "https://clob.polymarket.com",
			GammaHost:         "https://gamma-api.polymarket.com",
			ChainID:           137,
			RequestsPerSecond: 10,
			MarketLimit:       200,
		},
		Kalshi: KalshiConfig{
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			RequestsPerSecond: 10,
			MarketLimit:       200,
		},
		Store: StoreConfig{
			Driver: "postgres",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "crossarb-archive",
			ForcePathStyle:   true,
			ArchiveCron:      "0 3 * * *",
			ArchiveRetention: duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"match_candidate", "arb_alert", "execution"},
		},
		Mode:      "arbitrage",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"arbitrage": true,
	"monitor":   true,
	"match":     true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: arbitrage, monitor, match)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}

	// Trading
	switch strings.ToLower(c.Trading.Mode) {
	case "simulated", "live":
	default:
		errs = append(errs, fmt.Sprintf("trading: mode must be simulated or live, got %q", c.Trading.Mode))
	}
	if c.Trading.MinSpread < 0 {
		errs = append(errs, "trading: min_spread must be >= 0")
	}
	if c.Trading.MaxTradeSize <= 0 {
		errs = append(errs, "trading: max_trade_size must be > 0")
	}
	if c.Trading.MaxPositionPerMarket < c.Trading.MaxTradeSize {
		errs = append(errs, "trading: max_position_per_market must be >= max_trade_size")
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		errs = append(errs, "trading: fee_rate must be in [0, 1)")
	}
	if c.Trading.ImbalanceThreshold <= 0 || c.Trading.ImbalanceThreshold > 1 {
		errs = append(errs, "trading: imbalance_threshold must be in (0, 1]")
	}
	if c.Trading.OrderTimeout.Duration <= 0 {
		errs = append(errs, "trading: order_timeout must be > 0")
	}
	if c.Trading.PollInterval.Duration <= 0 {
		errs = append(errs, "trading: poll_interval must be > 0")
	}
	if c.Trading.PriceFetchInterval.Duration <= 0 {
		errs = append(errs, "trading: price_fetch_interval must be > 0")
	}
	if c.Trading.MaxConcurrentPairs < 1 {
		errs = append(errs, "trading: max_concurrent_pairs must be >= 1")
	}

	// Matching
	if c.Matching.MinSimilarity < 0 || c.Matching.MinSimilarity > 100 {
		errs = append(errs, fmt.Sprintf("matching: min_similarity must be 0-100, got %d", c.Matching.MinSimilarity))
	}
	if c.Matching.TimeWindow.Duration < 0 {
		errs = append(errs, "matching: time_window must be >= 0")
	}
	if c.Matching.RefreshInterval.Duration <= 0 {
		errs = append(errs, "matching: refresh_interval must be > 0")
	}

	// Simulation
	if c.Simulation.SlippageMax < 0 {
		errs = append(errs, "simulation: slippage_max must be >= 0")
	}
	if c.Simulation.PartialFillProbability < 0 || c.Simulation.PartialFillProbability > 1 {
		errs = append(errs, "simulation: partial_fill_probability must be in [0, 1]")
	}
	if !c.Trading.Live() && c.Simulation.StartingBalance <= 0 {
		errs = append(errs, "simulation: starting_balance must be > 0")
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be >= 1")
	}

	// Live trading needs credentials on both venues.
	if c.Trading.Live() && c.Mode == "arbitrage" {
		if c.Kalshi.ApiKey == "" || c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: api_key and rsa_private_key_path are required for live trading")
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live trading")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}
	pk := c.Polymarket.ApiKey != ""
	ps := c.Polymarket.ApiSecret != ""
	pp := c.Polymarket.ApiPassphrase != ""
	if (pk || ps || pp) && !(pk && ps && pp) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}
	if c.Polymarket.ClobHost == "" || c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: clob_host and gamma_host must not be empty")
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}

	// Store
	switch c.Store.Driver {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: driver must be postgres or memory, got %q", c.Store.Driver))
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

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if strings.TrimSpace(c.S3.ArchiveCron) == "" {
			errs = append(errs, "s3: archive_cron must not be empty")
		}
		if c.S3.ArchiveRetention.Duration <= 0 {
			errs = append(errs, "s3: archive_retention must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
