// Package config defines the top-level configuration for the PolySniper
// simulator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYSNIPER_* environment variables.
type Config struct {
	Backtest   BacktestConfig   `toml:"backtest"`
	Output     OutputConfig     `toml:"output"`
	Postgres   PostgresConfig   `toml:"postgres"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Wallet     WalletConfig     `toml:"wallet"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// BacktestConfig holds the parameters of a simulation run.
type BacktestConfig struct {
	Profiles      []string `toml:"profiles"`
	ExecutionMode string   `toml:"execution_mode"`
	MinProfitRate float64  `toml:"min_profit_rate"`
	Seed          int64    `toml:"seed"`
	// Source is "synthetic" or "replay".
	Source string `toml:"source"`
	// ReplayPath is a local CSV path or an s3://bucket/key URI.
	ReplayPath   string  `toml:"replay_path"`
	ReplayOffset float64 `toml:"replay_offset"`
	LagWeight    float64 `toml:"lag_weight"`
	Events       int     `toml:"events"`
	EventsPerDay int     `toml:"events_per_day"`
	DurationDays int     `toml:"duration_days"`

	SweepSeeds       int `toml:"sweep_seeds"`
	SweepConcurrency int `toml:"sweep_concurrency"`

	// CapitalOverrides replaces the built-in capital of named profiles.
	CapitalOverrides map[string]float64 `toml:"capital_overrides"`

	Risk RiskConfig `toml:"risk"`
}

// RiskConfig holds the optional per-profile risk limits. Zero disables a
// limit.
type RiskConfig struct {
	MaxPositionUSD float64 `toml:"max_position_usd"`
	CooldownTicks  int     `toml:"cooldown_ticks"`
}

// OutputConfig controls where run reports are written.
type OutputConfig struct {
	Dir     string   `toml:"dir"`
	Formats []string `toml:"formats"`
	// Archive uploads the rendered reports to S3 when S3 is enabled.
	Archive bool `toml:"archive"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// ClickHouseConfig holds the price-history store connection.
type ClickHouseConfig struct {
	Enabled   bool   `toml:"enabled"`
	DSN       string `toml:"dsn"`
	BatchSize int    `toml:"batch_size"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// WalletConfig holds the read-only Polygon wallet used to size capital.
type WalletConfig struct {
	Address      string   `toml:"address"`
	RPCURL       string   `toml:"rpc_url"`
	ChainID      int64    `toml:"chain_id"`
	USDCContract string   `toml:"usdc_contract"`
	Timeout      duration `toml:"timeout"`
	// CapitalProfile, when set, replaces that profile's capital with the
	// wallet's USDC balance before a run.
	CapitalProfile string `toml:"capital_profile"`
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
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	MaxConcurrentRuns int      `toml:"max_concurrent_runs"`
	// RunRateLimit caps run submissions per client per minute when Redis
	// is enabled. Zero disables it.
	RunRateLimit int `toml:"run_rate_limit"`
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
		Backtest: BacktestConfig{
			Profiles:         []string{domain.ProfileRetail, domain.ProfileSemiPro, domain.ProfilePro},
			ExecutionMode:    string(domain.ExecutionNonAtomic),
			MinProfitRate:    0.003,
			Seed:             42,
			Source:           string(domain.SourceSynthetic),
			ReplayOffset:     0.02,
			LagWeight:        0.3,
			Events:           15,
			EventsPerDay:     5,
			DurationDays:     3,
			SweepSeeds:       10,
			SweepConcurrency: 4,
			CapitalOverrides: map[string]float64{},
		},
		Output: OutputConfig{
			Dir:     "output",
			Formats: []string{"md", "csv", "jsonl"},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polysniper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		ClickHouse: ClickHouseConfig{
			DSN:       "clickhouse://localhost:9000/default",
			BatchSize: 5000,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polysniper-runs",
			Prefix:         "runs",
			ForcePathStyle: true,
		},
		Wallet: WalletConfig{
			RPCURL:       "https://polygon-rpc.com",
			ChainID:      137,
			USDCContract: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			Timeout:      duration{10 * time.Second},
		},
		Server: ServerConfig{
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			MaxConcurrentRuns: 2,
			RunRateLimit:      30,
		},
		Notify: NotifyConfig{
			Events: []string{"run_completed", "run_failed", "sweep_completed"},
		},
		Mode:     "backtest",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"backtest": true,
	"replay":   true,
	"sweep":    true,
	"serve":    true,
	"wallet":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFormats = map[string]bool{
	"md":    true,
	"csv":   true,
	"jsonl": true,
}

// UsesReplay reports whether the run reads a recorded quote log.
func (c *Config) UsesReplay() bool {
	return strings.EqualFold(c.Mode, "replay") ||
		strings.EqualFold(c.Backtest.Source, string(domain.SourceReplay))
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: backtest, replay, sweep, serve, wallet)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Backtest
	b := c.Backtest
	if len(b.Profiles) == 0 {
		errs = append(errs, "backtest: profiles must not be empty")
	}
	for _, name := range b.Profiles {
		if _, err := domain.LookupProfile(name); err != nil {
			errs = append(errs, "backtest: "+err.Error())
		}
	}
	for name, capital := range b.CapitalOverrides {
		if _, err := domain.LookupProfile(name); err != nil {
			errs = append(errs, "backtest: capital_overrides: "+err.Error())
		}
		if capital <= 0 {
			errs = append(errs, fmt.Sprintf("backtest: capital_overrides.%s must be > 0", name))
		}
	}
	if _, err := domain.ParseExecutionMode(b.ExecutionMode); err != nil {
		errs = append(errs, "backtest: "+err.Error())
	}
	switch strings.ToLower(b.Source) {
	case string(domain.SourceSynthetic), string(domain.SourceReplay), "":
	default:
		errs = append(errs, fmt.Sprintf("backtest: unknown source %q (valid: synthetic, replay)", b.Source))
	}
	if c.UsesReplay() && strings.TrimSpace(b.ReplayPath) == "" {
		errs = append(errs, "backtest: replay_path is required for replay runs")
	}
	if b.MinProfitRate < 0 {
		errs = append(errs, "backtest: min_profit_rate must be >= 0")
	}
	if b.LagWeight < 0 || b.LagWeight > 1 {
		errs = append(errs, "backtest: lag_weight must be within [0, 1]")
	}
	if !c.UsesReplay() {
		if b.Events < 1 {
			errs = append(errs, "backtest: events must be >= 1")
		}
		if b.EventsPerDay < 1 {
			errs = append(errs, "backtest: events_per_day must be >= 1")
		}
		if b.DurationDays < 1 {
			errs = append(errs, "backtest: duration_days must be >= 1")
		}
	}
	if mode == "sweep" {
		if b.SweepSeeds < 1 {
			errs = append(errs, "backtest: sweep_seeds must be >= 1")
		}
		if b.SweepConcurrency < 1 {
			errs = append(errs, "backtest: sweep_concurrency must be >= 1")
		}
	}
	if b.Risk.MaxPositionUSD < 0 {
		errs = append(errs, "backtest.risk: max_position_usd must be >= 0")
	}
	if b.Risk.CooldownTicks < 0 {
		errs = append(errs, "backtest.risk: cooldown_ticks must be >= 0")
	}

	// Output
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, "output: dir must not be empty")
	}
	for _, f := range c.Output.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Sprintf("output: unknown format %q (valid: md, csv, jsonl)", f))
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	// ClickHouse
	if c.ClickHouse.Enabled {
		if strings.TrimSpace(c.ClickHouse.DSN) == "" {
			errs = append(errs, "clickhouse: dsn must not be empty")
		}
		if c.ClickHouse.BatchSize < 1 {
			errs = append(errs, "clickhouse: batch_size must be >= 1")
		}
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
	if c.S3.Enabled || strings.HasPrefix(c.Backtest.ReplayPath, "s3://") {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Output.Archive && !c.S3.Enabled {
		errs = append(errs, "output: archive requires s3.enabled")
	}

	// Wallet
	if mode == "wallet" || c.Wallet.CapitalProfile != "" {
		if strings.TrimSpace(c.Wallet.Address) == "" {
			errs = append(errs, "wallet: address is required for wallet mode or capital_profile")
		}
		if c.Wallet.RPCURL == "" {
			errs = append(errs, "wallet: rpc_url must not be empty")
		}
	}
	if c.Wallet.CapitalProfile != "" {
		if _, err := domain.LookupProfile(c.Wallet.CapitalProfile); err != nil {
			errs = append(errs, "wallet: capital_profile: "+err.Error())
		}
	}

	// Server
	if mode == "serve" || c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.MaxConcurrentRuns < 1 {
			errs = append(errs, "server: max_concurrent_runs must be >= 1")
		}
		if c.Server.RunRateLimit < 0 {
			errs = append(errs, "server: run_rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}
