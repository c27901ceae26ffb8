package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"TokenSentinel/internal/heartbeat"
	"TokenSentinel/internal/logger"

	"github.com/spf13/cobra"
)

var runOnStart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the heartbeat, retry jobs and Telegram polling until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runEngine,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	runCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run one decision cycle immediately")
}

func runEngine(cmd *cobra.Command, args []string) error {
	log := logger.GetForComponent("main")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := heartbeat.NewRunner(ctx)
	if err := runner.RegisterHeartbeat(cfg.Heartbeat.PollCron, a.heartbeat); err != nil {
		return err
	}
	if err := runner.Register(heartbeat.Job{
		Name:    "transfer-retry",
		Spec:    cfg.Allocator.RetryCron,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := a.allocator.RetryFailed(ctx)
			return err
		},
	}); err != nil {
		return err
	}
	if err := runner.Register(heartbeat.Job{
		Name:    "reward-retry",
		Spec:    cfg.Allocator.RetryCron,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := a.selector.RetryUnpaid(ctx)
			return err
		},
	}); err != nil {
		return err
	}
	runner.Start()
	defer runner.Stop()

	if a.telegram != nil {
		go a.telegram.StartPolling(ctx, a.engine.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if runOnStart {
		runner.BeatNow(a.heartbeat)
	}

	log.Info().Str("poll", cfg.Heartbeat.PollCron).Bool("dry_run", cfg.Executor.DryRun).
		Msg("TokenSentinel is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
	return nil
}
