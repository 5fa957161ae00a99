package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "POLYSNIPER_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYSNIPER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYSNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Backtest ──
	setStringSlice(&cfg.Backtest.Profiles, "BACKTEST_PROFILES")
	setStr(&cfg.Backtest.ExecutionMode, "BACKTEST_EXECUTION_MODE")
	setFloat64(&cfg.Backtest.MinProfitRate, "BACKTEST_MIN_PROFIT_RATE")
	setInt64(&cfg.Backtest.Seed, "BACKTEST_SEED")
	setStr(&cfg.Backtest.Source, "BACKTEST_SOURCE")
	setStr(&cfg.Backtest.ReplayPath, "BACKTEST_REPLAY_PATH")
	setFloat64(&cfg.Backtest.ReplayOffset, "BACKTEST_REPLAY_OFFSET")
	setFloat64(&cfg.Backtest.LagWeight, "BACKTEST_LAG_WEIGHT")
	setInt(&cfg.Backtest.Events, "BACKTEST_EVENTS")
	setInt(&cfg.Backtest.EventsPerDay, "BACKTEST_EVENTS_PER_DAY")
	setInt(&cfg.Backtest.DurationDays, "BACKTEST_DURATION_DAYS")
	setInt(&cfg.Backtest.SweepSeeds, "BACKTEST_SWEEP_SEEDS")
	setInt(&cfg.Backtest.SweepConcurrency, "BACKTEST_SWEEP_CONCURRENCY")
	setFloatMap(&cfg.Backtest.CapitalOverrides, "BACKTEST_CAPITAL_OVERRIDES")
	setFloat64(&cfg.Backtest.Risk.MaxPositionUSD, "BACKTEST_RISK_MAX_POSITION_USD")
	setInt(&cfg.Backtest.Risk.CooldownTicks, "BACKTEST_RISK_COOLDOWN_TICKS")

	// ── Output ──
	setStr(&cfg.Output.Dir, "OUTPUT_DIR")
	setStringSlice(&cfg.Output.Formats, "OUTPUT_FORMATS")
	setBool(&cfg.Output.Archive, "OUTPUT_ARCHIVE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setInt(&cfg.ClickHouse.BatchSize, "CLICKHOUSE_BATCH_SIZE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Wallet ──
	setStr(&cfg.Wallet.Address, "WALLET_ADDRESS")
	setStr(&cfg.Wallet.RPCURL, "WALLET_RPC_URL")
	setInt64(&cfg.Wallet.ChainID, "WALLET_CHAIN_ID")
	setStr(&cfg.Wallet.USDCContract, "WALLET_USDC_CONTRACT")
	setDuration(&cfg.Wallet.Timeout, "WALLET_TIMEOUT")
	setStr(&cfg.Wallet.CapitalProfile, "WALLET_CAPITAL_PROFILE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.MaxConcurrentRuns, "SERVER_MAX_CONCURRENT_RUNS")
	setInt(&cfg.Server.RunRateLimit, "SERVER_RUN_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty. Keys are given without the prefix.
// ---------------------------------------------------------------------------

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

func setStr(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := getenv(key); v != "" {
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

// setFloatMap parses "name=value,name=value". Malformed pairs are ignored.
func setFloatMap(dst *map[string]float64, key string) {
	v := getenv(key)
	if v == "" {
		return
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(v, ",") {
		name, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(name)] = f
	}
	if len(out) > 0 {
		*dst = out
	}
}
