package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Curve struct {
		VirtualBase        float64 `yaml:"virtual_base"`
		VirtualQuote       float64 `yaml:"virtual_quote"`
		PublicSaleFraction float64 `yaml:"public_sale_fraction"`
		FeePct             float64 `yaml:"fee_pct"`
		GraduationTarget   float64 `yaml:"graduation_target"`
		QuoteAsset         string  `yaml:"quote_asset"`
	} `yaml:"curve"`
	Guard struct {
		PerMinute    int           `yaml:"per_minute"`
		PerHour      int           `yaml:"per_hour"`
		PerDay       int           `yaml:"per_day"`
		MinTrade     float64       `yaml:"min_trade"`
		MaxTrade     float64       `yaml:"max_trade"`
		MaxSupplyPct float64       `yaml:"max_supply_pct"`
		WhalePct     float64       `yaml:"whale_pct"`
		PumpWindow   time.Duration `yaml:"pump_window"`
		PumpMinPairs int           `yaml:"pump_min_pairs"`
	} `yaml:"guard"`
	Allocator struct {
		Epsilon       float64           `yaml:"epsilon"`
		RetryLookback time.Duration     `yaml:"retry_lookback"`
		MaxAttempts   int               `yaml:"max_attempts"`
		StaleAfter    time.Duration     `yaml:"stale_after"`
		RetryCron     string            `yaml:"retry_cron"`
		PoolWallets   map[string]string `yaml:"pool_wallets"`
	} `yaml:"allocator"`
	Selector struct {
		ActivityWindow      time.Duration `yaml:"activity_window"`
		FlagLookback        time.Duration `yaml:"flag_lookback"`
		WinnerCooldown      time.Duration `yaml:"winner_cooldown"`
		MaxWeight           uint64        `yaml:"max_weight"`
		RewardAsset         string        `yaml:"reward_asset"`
		RewardWalletClass   string        `yaml:"reward_wallet_class"`
		PayoutRetryLookback time.Duration `yaml:"payout_retry_lookback"`
	} `yaml:"selector"`
	Governor struct {
		SplitEpsilon        float64  `yaml:"split_epsilon"`
		ReinvestmentFloor   float64  `yaml:"reinvestment_floor"`
		TokensPerHour       int      `yaml:"tokens_per_hour"`
		MaxTransferPct      float64  `yaml:"max_transfer_pct"`
		MaxReward           float64  `yaml:"max_reward"`
		MinConfidence       float64  `yaml:"min_confidence"`
		AllowedDestinations []string `yaml:"allowed_destinations"`
		EntropyThreshold    float64  `yaml:"entropy_threshold"`
	} `yaml:"governor"`
	Heartbeat struct {
		PollCron    string        `yaml:"poll_cron"`
		MinInterval time.Duration `yaml:"min_interval"`
		MaxInterval time.Duration `yaml:"max_interval"`
		StatsWindow time.Duration `yaml:"stats_window"`
		PeakStart   int           `yaml:"peak_start"`
		PeakEnd     int           `yaml:"peak_end"`
		OffStart    int           `yaml:"off_start"`
		OffEnd      int           `yaml:"off_end"`
	} `yaml:"heartbeat"`
	Decision struct {
		Endpoint        string        `yaml:"endpoint"`
		APIKey          string        `yaml:"api_key"`
		Timeout         time.Duration `yaml:"timeout"`
		MinProfit       float64       `yaml:"min_profit"`
		RewardShare     float64       `yaml:"reward_share"`
		MaxTokensPerDay int           `yaml:"max_tokens_per_day"`
		TokenSupply     float64       `yaml:"token_supply"`
		SymbolPrefix    string        `yaml:"symbol_prefix"`
		Creator         string        `yaml:"creator"`
	} `yaml:"decision"`
	Entropy struct {
		RPCURL  string        `yaml:"rpc_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"entropy"`
	Executor struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		Timeout      time.Duration `yaml:"timeout"`
		MintAttempts int           `yaml:"mint_attempts"`
		MintBackoff  time.Duration `yaml:"mint_backoff"`
		DryRun       bool          `yaml:"dry_run"`
	} `yaml:"executor"`
	Indexer struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"indexer"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads an optional .env file, then config from a YAML file, then applies
// environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("DECISION_ENDPOINT", &c.Decision.Endpoint)
	str("DECISION_API_KEY", &c.Decision.APIKey)
	str("EXECUTOR_BASE_URL", &c.Executor.BaseURL)
	str("EXECUTOR_API_KEY", &c.Executor.APIKey)
	str("ENTROPY_RPC_URL", &c.Entropy.RPCURL)
	str("INDEXER_BASE_URL", &c.Indexer.BaseURL)
	str("INDEXER_API_KEY", &c.Indexer.APIKey)
	str("HTTPS_PROXY", &c.Proxy)
	str("LOG_LEVEL", &c.Log.Level)
	str("HEARTBEAT_CRON", &c.Heartbeat.PollCron)

	if v := os.Getenv("EXECUTOR_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Executor.DryRun = b
		}
	}
	if v := os.Getenv("GOVERNOR_ALLOWED_DESTINATIONS"); v != "" {
		c.Governor.AllowedDestinations = nil
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				c.Governor.AllowedDestinations = append(c.Governor.AllowedDestinations, d)
			}
		}
	}
}

func (c *Config) applyDefaults() {
	setStr := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setF := func(dst *float64, v float64) {
		if *dst == 0 {
			*dst = v
		}
	}
	setI := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	setD := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}

	setStr(&c.Database.Driver, "sqlite")
	setStr(&c.Database.DSN, "data/token_sentinel.db")

	setF(&c.Curve.VirtualBase, 1_073_000_000)
	setF(&c.Curve.VirtualQuote, 30_000)
	setF(&c.Curve.PublicSaleFraction, 0.8)
	setF(&c.Curve.FeePct, 1)
	setF(&c.Curve.GraduationTarget, 85_000)
	setStr(&c.Curve.QuoteAsset, "SOL")

	setI(&c.Guard.PerMinute, 5)
	setI(&c.Guard.PerHour, 30)
	setI(&c.Guard.PerDay, 200)
	setF(&c.Guard.MinTrade, 0.01)
	setF(&c.Guard.MaxTrade, 10000)
	setF(&c.Guard.MaxSupplyPct, 2)
	setF(&c.Guard.WhalePct, 5)
	setD(&c.Guard.PumpWindow, 10*time.Minute)
	setI(&c.Guard.PumpMinPairs, 3)

	setF(&c.Allocator.Epsilon, 0.01)
	setD(&c.Allocator.RetryLookback, 24*time.Hour)
	setI(&c.Allocator.MaxAttempts, 3)
	setD(&c.Allocator.StaleAfter, 10*time.Minute)
	setStr(&c.Allocator.RetryCron, "@every 15m")

	setD(&c.Selector.ActivityWindow, 24*time.Hour)
	setD(&c.Selector.FlagLookback, 7*24*time.Hour)
	setD(&c.Selector.WinnerCooldown, 7*24*time.Hour)
	if c.Selector.MaxWeight == 0 {
		c.Selector.MaxWeight = 10
	}
	setStr(&c.Selector.RewardAsset, c.Curve.QuoteAsset)
	setStr(&c.Selector.RewardWalletClass, "reward")
	setD(&c.Selector.PayoutRetryLookback, 24*time.Hour)

	setF(&c.Governor.SplitEpsilon, 0.01)
	setF(&c.Governor.ReinvestmentFloor, 50)
	setI(&c.Governor.TokensPerHour, 3)
	setF(&c.Governor.MaxTransferPct, 5)
	setF(&c.Governor.MaxReward, 100)
	setF(&c.Governor.MinConfidence, 0.5)
	setF(&c.Governor.EntropyThreshold, 0.7)

	setStr(&c.Heartbeat.PollCron, "@every 1m")
	setD(&c.Heartbeat.MinInterval, time.Hour)
	setD(&c.Heartbeat.MaxInterval, 6*time.Hour)
	setD(&c.Heartbeat.StatsWindow, time.Hour)
	// peak 14-22 and off-peak 2-8 UTC; zero is a valid hour so defaults
	// apply only when the whole block is unset
	if c.Heartbeat.PeakStart == 0 && c.Heartbeat.PeakEnd == 0 && c.Heartbeat.OffStart == 0 && c.Heartbeat.OffEnd == 0 {
		c.Heartbeat.PeakStart, c.Heartbeat.PeakEnd = 14, 22
		c.Heartbeat.OffStart, c.Heartbeat.OffEnd = 2, 8
	}

	setD(&c.Decision.Timeout, 20*time.Second)
	setF(&c.Decision.MinProfit, 10)
	setF(&c.Decision.RewardShare, 0.1)
	setI(&c.Decision.MaxTokensPerDay, 2)
	setF(&c.Decision.TokenSupply, 1_000_000_000)
	setStr(&c.Decision.SymbolPrefix, "SNT")

	setD(&c.Entropy.Timeout, 5*time.Second)

	setD(&c.Executor.Timeout, 30*time.Second)
	setI(&c.Executor.MintAttempts, 3)
	setD(&c.Executor.MintBackoff, time.Second)

	setStr(&c.Log.Level, "info")
	setStr(&c.Log.Format, "console")
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Curve.PublicSaleFraction <= 0 || c.Curve.PublicSaleFraction > 1 {
		return fmt.Errorf("curve.public_sale_fraction must be in (0,1]")
	}
	if c.Curve.FeePct < 0 || c.Curve.FeePct >= 100 {
		return fmt.Errorf("curve.fee_pct must be in [0,100)")
	}
	if c.Guard.MaxTrade < c.Guard.MinTrade {
		return fmt.Errorf("guard.max_trade must not be below guard.min_trade")
	}
	if c.Heartbeat.MinInterval > c.Heartbeat.MaxInterval {
		return fmt.Errorf("heartbeat.min_interval must not exceed heartbeat.max_interval")
	}
	for name, h := range map[string]int{
		"peak_start": c.Heartbeat.PeakStart, "peak_end": c.Heartbeat.PeakEnd,
		"off_start": c.Heartbeat.OffStart, "off_end": c.Heartbeat.OffEnd,
	} {
		if h < 0 || h > 24 {
			return fmt.Errorf("heartbeat.%s must be an hour in [0,24]", name)
		}
	}
	if c.Governor.EntropyThreshold < 0 || c.Governor.EntropyThreshold > 1 {
		return fmt.Errorf("governor.entropy_threshold must be in [0,1]")
	}
	if c.Governor.MinConfidence < 0 || c.Governor.MinConfidence > 1 {
		return fmt.Errorf("governor.min_confidence must be in [0,1]")
	}
	if c.Decision.RewardShare < 0 || c.Decision.RewardShare > 1 {
		return fmt.Errorf("decision.reward_share must be in [0,1]")
	}
	if !c.Executor.DryRun && c.Executor.BaseURL == "" {
		return fmt.Errorf("executor.base_url is required unless executor.dry_run is set")
	}
	if c.Entropy.RPCURL == "" {
		return fmt.Errorf("entropy.rpc_url is required")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required with telegram.bot_token")
	}
	return nil
}
