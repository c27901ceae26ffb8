package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1_073_000_000.0, cfg.Curve.VirtualBase)
	assert.Equal(t, "SOL", cfg.Selector.RewardAsset)
	assert.Equal(t, 24*time.Hour, cfg.Allocator.RetryLookback)
	assert.Equal(t, 14, cfg.Heartbeat.PeakStart)
	assert.Equal(t, 8, cfg.Heartbeat.OffEnd)
	assert.Equal(t, uint64(10), cfg.Selector.MaxWeight)
	assert.Equal(t, 24*time.Hour, cfg.Selector.PayoutRetryLookback)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://localhost/sentinel
curve:
  quote_asset: USDC
heartbeat:
  min_interval: 30m
  peak_start: 0
  peak_end: 6
allocator:
  pool_wallets:
    treasury: wallet-t
governor:
  allowed_destinations: [a, b]
executor:
  base_url: http://signer
entropy:
  rpc_url: http://rpc
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "7")
	t.Setenv("GOVERNOR_ALLOWED_DESTINATIONS", " x , y,,")
	t.Setenv("EXECUTOR_DRY_RUN", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "USDC", cfg.Selector.RewardAsset)
	assert.Equal(t, 30*time.Minute, cfg.Heartbeat.MinInterval)
	assert.Equal(t, 0, cfg.Heartbeat.PeakStart)
	assert.Equal(t, 6, cfg.Heartbeat.PeakEnd)
	assert.Equal(t, "wallet-t", cfg.Allocator.PoolWallets["treasury"])
	assert.Equal(t, []string{"x", "y"}, cfg.Governor.AllowedDestinations)
	assert.Equal(t, "tok", cfg.Telegram.BotToken)
	assert.True(t, cfg.Executor.DryRun)
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INDEXER_BASE_URL=http://indexer\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("INDEXER_BASE_URL") })

	cfg, err := Load("none.yaml")
	require.NoError(t, err)
	assert.Equal(t, "http://indexer", cfg.Indexer.BaseURL)
}

func TestLoadMalformed(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(writeConfig(t, "database: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	valid := func() *Config {
		cfg, err := Load("none.yaml")
		require.NoError(t, err)
		cfg.Executor.BaseURL = "http://signer"
		cfg.Entropy.RPCURL = "http://rpc"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"driver":      func(c *Config) { c.Database.Driver = "mysql" },
		"fraction":    func(c *Config) { c.Curve.PublicSaleFraction = 1.5 },
		"trade range": func(c *Config) { c.Guard.MaxTrade = 0.001 },
		"interval":    func(c *Config) { c.Heartbeat.MinInterval = 10 * time.Hour },
		"hour":        func(c *Config) { c.Heartbeat.OffEnd = 25 },
		"threshold":   func(c *Config) { c.Governor.EntropyThreshold = 2 },
		"executor":    func(c *Config) { c.Executor.BaseURL = "" },
		"rpc":         func(c *Config) { c.Entropy.RPCURL = "" },
		"chat":        func(c *Config) { c.Telegram.BotToken = "tok"; c.Telegram.ChatID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
