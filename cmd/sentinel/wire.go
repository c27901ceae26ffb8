package main

import (
	"fmt"
	"time"

	"TokenSentinel/internal/allocator"
	"TokenSentinel/internal/collector"
	"TokenSentinel/internal/config"
	"TokenSentinel/internal/curve"
	"TokenSentinel/internal/decision"
	"TokenSentinel/internal/engine"
	"TokenSentinel/internal/entropy"
	"TokenSentinel/internal/governor"
	"TokenSentinel/internal/guard"
	"TokenSentinel/internal/heartbeat"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/notifier"
	"TokenSentinel/internal/selector"
	"TokenSentinel/internal/store"
	"TokenSentinel/internal/transfer"

	"github.com/shopspring/decimal"
)

// app is every component built from one config.
type app struct {
	cfg       *config.Config
	store     *store.Store
	executor  transfer.Executor
	trader    *curve.Trader
	launcher  *curve.Launcher
	allocator *allocator.Manager
	selector  *selector.Service
	governor  *governor.Governor
	collector *collector.Collector
	engine    *engine.Engine
	heartbeat *heartbeat.Heartbeat
	telegram  *notifier.TelegramNotifier
}

func (a *app) Close() error { return a.store.Close() }

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func curveParams(cfg *config.Config) curve.Params {
	return curve.Params{
		VirtualBase:        dec(cfg.Curve.VirtualBase),
		VirtualQuote:       dec(cfg.Curve.VirtualQuote),
		PublicSaleFraction: dec(cfg.Curve.PublicSaleFraction),
		FeePct:             dec(cfg.Curve.FeePct),
		GraduationTarget:   dec(cfg.Curve.GraduationTarget),
	}
}

func guardLimits(cfg *config.Config) guard.Limits {
	g := cfg.Guard
	return guard.Limits{
		Rate:         guard.RateLimits{PerMinute: g.PerMinute, PerHour: g.PerHour, PerDay: g.PerDay},
		MinTrade:     dec(g.MinTrade),
		MaxTrade:     dec(g.MaxTrade),
		MaxSupplyPct: g.MaxSupplyPct,
		WhalePct:     g.WhalePct,
		PumpWindow:   g.PumpWindow,
		PumpMinPairs: g.PumpMinPairs,
	}
}

func allocatorConfig(cfg *config.Config) allocator.Config {
	c := allocator.Config{
		Epsilon:       cfg.Allocator.Epsilon,
		PoolWallets:   make(map[model.Pool]string, len(cfg.Allocator.PoolWallets)),
		RetryLookback: cfg.Allocator.RetryLookback,
		MaxAttempts:   cfg.Allocator.MaxAttempts,
		StaleAfter:    cfg.Allocator.StaleAfter,
	}
	for pool, wallet := range cfg.Allocator.PoolWallets {
		c.PoolWallets[model.Pool(pool)] = wallet
	}
	return c
}

func selectorConfig(cfg *config.Config) selector.Config {
	s := cfg.Selector
	return selector.Config{
		ActivityWindow:      s.ActivityWindow,
		FlagLookback:        s.FlagLookback,
		WinnerCooldown:      s.WinnerCooldown,
		MaxWeight:           s.MaxWeight,
		EntropyTimeout:      cfg.Entropy.Timeout,
		RewardAsset:         s.RewardAsset,
		RewardWalletClass:   s.RewardWalletClass,
		PayoutRetryLookback: s.PayoutRetryLookback,
	}
}

func governorLimits(cfg *config.Config) governor.Limits {
	g := cfg.Governor
	return governor.Limits{
		SplitEpsilon:       g.SplitEpsilon,
		ReinvestmentFloor:  g.ReinvestmentFloor,
		TokensPerHour:      g.TokensPerHour,
		MaxTransferPct:     g.MaxTransferPct,
		MaxReward:          dec(g.MaxReward),
		MinConfidence:      g.MinConfidence,
		AllowedDestination: g.AllowedDestinations,
	}
}

func heartbeatConfig(cfg *config.Config) heartbeat.Config {
	h := heartbeat.DefaultConfig()
	h.MinInterval = cfg.Heartbeat.MinInterval
	h.MaxInterval = cfg.Heartbeat.MaxInterval
	h.StatsWindow = cfg.Heartbeat.StatsWindow
	h.PeakStart, h.PeakEnd = cfg.Heartbeat.PeakStart, cfg.Heartbeat.PeakEnd
	h.OffStart, h.OffEnd = cfg.Heartbeat.OffStart, cfg.Heartbeat.OffEnd
	return h
}

func ruleConfig(cfg *config.Config) decision.RuleConfig {
	r := decision.DefaultRuleConfig()
	r.MinProfit = dec(cfg.Decision.MinProfit)
	r.RewardShare = dec(cfg.Decision.RewardShare)
	r.MaxTokensPerDay = cfg.Decision.MaxTokensPerDay
	r.TokenSupply = dec(cfg.Decision.TokenSupply)
	r.SymbolPrefix = cfg.Decision.SymbolPrefix
	return r
}

// build opens the store and wires every component. The caller closes the app.
func build(cfg *config.Config) (*app, error) {
	st, err := store.Open(store.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: st}

	if cfg.Executor.DryRun {
		a.executor = transfer.NewMockExecutor()
	} else {
		a.executor = transfer.NewHTTPExecutor(cfg.Executor.BaseURL, cfg.Executor.APIKey, cfg.Proxy, cfg.Executor.Timeout)
	}

	params := curveParams(cfg)
	a.trader = curve.NewTrader(st, params, guardLimits(cfg))

	retry := transfer.DefaultRetryPolicy()
	retry.Attempts = cfg.Executor.MintAttempts
	retry.Initial = cfg.Executor.MintBackoff
	retry.Max = 8 * cfg.Executor.MintBackoff
	a.launcher = curve.NewLauncher(st, a.executor, params, retry)

	a.allocator = allocator.NewManager(st, a.executor, allocatorConfig(cfg))

	var src entropy.Source = entropy.NewRPCSource(cfg.Entropy.RPCURL, cfg.Proxy, cfg.Entropy.Timeout)
	a.selector = selector.NewService(st, src, a.executor, selectorConfig(cfg))

	govCfg := governor.DefaultConfig()
	govCfg.Threshold = cfg.Governor.EntropyThreshold
	a.governor = governor.New(st, governor.Builtin(governorLimits(cfg), st, func() time.Time { return time.Now().UTC() }), govCfg)

	var primary, fallback collector.Fetcher = collector.NewStoreFetcher(st), nil
	if cfg.Indexer.BaseURL != "" {
		primary, fallback = collector.NewIndexerFetcher(cfg.Indexer.BaseURL, cfg.Indexer.APIKey, cfg.Proxy), primary
	}
	a.collector = collector.NewCollector(primary, fallback).WithActivity(st, collector.DefaultTrendConfig())

	var remote decision.Source
	if cfg.Decision.Endpoint != "" {
		remote = decision.NewHTTPSource(cfg.Decision.Endpoint, cfg.Decision.APIKey, cfg.Proxy, cfg.Decision.Timeout)
	}
	source := decision.NewResilient(remote, decision.NewRuleSource(ruleConfig(cfg)))

	var announcer engine.Announcer
	if cfg.Telegram.BotToken != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		announcer = a.telegram
	}

	engCfg := engine.DefaultConfig()
	engCfg.QuoteAsset = cfg.Curve.QuoteAsset
	engCfg.Creator = cfg.Decision.Creator
	engCfg.GraduationTarget = params.GraduationTarget
	a.engine = engine.New(engine.Deps{
		Store:     st,
		Market:    a.collector,
		Trend:     a.collector,
		Source:    source,
		Governor:  a.governor,
		Launcher:  a.launcher,
		Allocator: a.allocator,
		Selector:  a.selector,
		Executor:  a.executor,
		Announcer: announcer,
	}, engCfg)

	a.heartbeat = heartbeat.New(st, a.collector, a.engine.RunCycle, heartbeatConfig(cfg))
	return a, nil
}
