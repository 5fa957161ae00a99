package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjust481/PolySniper/internal/domain"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"retail", "semi_pro", "pro"}, cfg.Backtest.Profiles)
	assert.Equal(t, 0.02, cfg.Backtest.ReplayOffset)
	assert.Equal(t, int64(137), cfg.Wallet.ChainID)
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Backtest.Profiles = []string{"whale"}
	cfg.Backtest.ExecutionMode = "sometimes"
	cfg.Backtest.Events = 0
	cfg.Output.Formats = []string{"pdf"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	for _, want := range []string{`unknown mode "trade"`, "whale", "sometimes", "events must be >= 1", `unknown format "pdf"`} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ReplayNeedsPath(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Backtest.Events = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay_path is required")
	assert.NotContains(t, err.Error(), "events must be")

	cfg.Backtest.ReplayPath = "data/ticks.csv"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_WalletAndServer(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "wallet"
	assert.ErrorContains(t, cfg.Validate(), "wallet: address is required")

	cfg = Defaults()
	cfg.Wallet.Address = "0x0000000000000000000000000000000000000001"
	cfg.Wallet.CapitalProfile = "nobody"
	assert.ErrorContains(t, cfg.Validate(), "capital_profile")

	cfg = Defaults()
	cfg.Mode = "serve"
	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "server: port")

	cfg = Defaults()
	cfg.Output.Archive = true
	assert.ErrorContains(t, cfg.Validate(), "archive requires s3.enabled")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "polysniper.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "sweep"
log_level = "debug"

[backtest]
profiles = ["pro", "retail"]
seed = 7
events = 20

[backtest.capital_overrides]
pro = 25000.0

[backtest.risk]
cooldown_ticks = 4

[wallet]
timeout = "3s"
`), 0o644))

	t.Setenv("POLYSNIPER_BACKTEST_SEED", "99")
	t.Setenv("POLYSNIPER_REDIS_PASSWORD", "hunter2")
	t.Setenv("POLYSNIPER_OUTPUT_FORMATS", "csv, md")
	t.Setenv("POLYSNIPER_BACKTEST_CAPITAL_OVERRIDES", "retail=2500,bogus")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sweep", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"pro", "retail"}, cfg.Backtest.Profiles)
	assert.Equal(t, int64(99), cfg.Backtest.Seed)
	assert.Equal(t, 20, cfg.Backtest.Events)
	assert.Equal(t, 5, cfg.Backtest.EventsPerDay)
	assert.Equal(t, 4, cfg.Backtest.Risk.CooldownTicks)
	assert.Equal(t, map[string]float64{"retail": 2500}, cfg.Backtest.CapitalOverrides)
	assert.Equal(t, 3*time.Second, cfg.Wallet.Timeout.Duration)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, []string{"csv", "md"}, cfg.Output.Formats)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "key"
	cfg.Backtest.CapitalOverrides["pro"] = 1

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.S3.AccessKey)
	assert.Equal(t, "secret", cfg.Redis.Password)

	out.Backtest.CapitalOverrides["pro"] = 2
	out.Backtest.Profiles[0] = "changed"
	assert.Equal(t, 1.0, cfg.Backtest.CapitalOverrides["pro"])
	assert.Equal(t, "retail", cfg.Backtest.Profiles[0])
}
