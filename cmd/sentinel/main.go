package main

import (
	"fmt"
	"os"

	"TokenSentinel/internal/config"
	"TokenSentinel/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string

	// cfg is loaded once by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "TokenSentinel - governed token launchpad engine",
	Long: `TokenSentinel runs bonding-curve markets for launched tokens, splits
realized profit across pools and rewards active wallets with verifiable draws.

Every autonomous action passes the governor before it executes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		logger.Initialize(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the YAML config file")

	rootCmd.AddCommand(runCmd, migrateCmd)
	rootCmd.AddCommand(buyCmd, sellCmd, launchCmd)
	rootCmd.AddCommand(splitCmd, distributeCmd, retryCmd, verifyProofCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
