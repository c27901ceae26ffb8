package main

import (
	"fmt"
	"strings"

	"TokenSentinel/internal/curve"
	"TokenSentinel/internal/governor"
	"TokenSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Trade flags, shared by buy and sell.
var (
	tradeAsset       string
	tradeWallet      string
	tradeAmount      string
	tradeMaxSlippage string
	tradePreview     bool
)

// Launch flags.
var (
	launchSymbol string
	launchName   string
	launchSupply string
)

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Buy base from a curve with a quote amount",
	Args:  cobra.NoArgs,
	RunE:  runTrade(model.SideBuy),
}

var sellCmd = &cobra.Command{
	Use:   "sell",
	Short: "Sell a base amount back into a curve",
	Args:  cobra.NoArgs,
	RunE:  runTrade(model.SideSell),
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Mint a new token and open its curve, reviewed by the governor",
	Args:  cobra.NoArgs,
	RunE:  runLaunch,
}

func init() {
	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().StringVar(&tradeAsset, "asset", "", "Asset symbol (required)")
		c.Flags().StringVar(&tradeWallet, "wallet", "", "Trading wallet (required)")
		c.Flags().StringVar(&tradeAmount, "amount", "", "Quote amount for buys, base amount for sells (required)")
		c.Flags().StringVar(&tradeMaxSlippage, "max-slippage", "5", "Maximum slippage in percent")
		c.Flags().BoolVar(&tradePreview, "preview", false, "Quote the trade without executing it")
		_ = c.MarkFlagRequired("asset")
		_ = c.MarkFlagRequired("wallet")
		_ = c.MarkFlagRequired("amount")
	}

	launchCmd.Flags().StringVar(&launchSymbol, "symbol", "", "Ticker of the new token (required)")
	launchCmd.Flags().StringVar(&launchName, "name", "", "Display name")
	launchCmd.Flags().StringVar(&launchSupply, "supply", "", "Total supply, defaults to decision.token_supply")
	_ = launchCmd.MarkFlagRequired("symbol")
}

func parseDecimal(flag, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s %q: %w", flag, v, err)
	}
	return d, nil
}

func runTrade(side model.Side) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		amount, err := parseDecimal("amount", tradeAmount)
		if err != nil {
			return err
		}
		slippage, err := parseDecimal("max-slippage", tradeMaxSlippage)
		if err != nil {
			return err
		}

		a, err := build(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		req := curve.TradeRequest{
			Asset:          strings.ToUpper(tradeAsset),
			Wallet:         tradeWallet,
			Amount:         amount,
			MaxSlippagePct: slippage,
		}
		out := cmd.OutOrStdout()

		if tradePreview {
			q, err := a.trader.Preview(cmd.Context(), side, req)
			if err != nil {
				return fmt.Errorf("preview: %w", err)
			}
			fmt.Fprintf(out, "%s %s: in %s, out %s, price %s, slippage %s%%, fee %s\n",
				side, req.Asset, q.AmountIn, q.AmountOut, q.ExecutionPrice, q.SlippagePct.StringFixed(4), q.Fee)
			return nil
		}

		var res curve.TradeResult
		if side == model.SideBuy {
			res, err = a.trader.Buy(cmd.Context(), req)
		} else {
			res, err = a.trader.Sell(cmd.Context(), req)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", side, err)
		}

		fmt.Fprintf(out, "%s %s: in %s, out %s, price %s, fee %s\n",
			side, res.Asset, res.AmountIn, res.AmountOut, res.ExecutionPrice, res.Fee)
		if len(res.Flags) > 0 {
			fmt.Fprintf(out, "flags: %s\n", strings.Join(res.Flags, ", "))
		}
		if res.Graduated {
			fmt.Fprintf(out, "%s has graduated\n", res.Asset)
		}
		return nil
	}
}

func runLaunch(cmd *cobra.Command, args []string) error {
	supply := decimal.NewFromFloat(cfg.Decision.TokenSupply)
	if launchSupply != "" {
		var err error
		if supply, err = parseDecimal("supply", launchSupply); err != nil {
			return err
		}
	}

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	symbol := strings.ToUpper(launchSymbol)
	name := launchName
	if name == "" {
		name = symbol
	}
	res, err := a.engine.Execute(cmd.Context(), operatorProposal(governor.TokenCreation{
		Symbol:  symbol,
		Name:    name,
		Supply:  supply,
		Creator: cfg.Decision.Creator,
	}, "operator launch"), nil)
	return printResult(cmd, res, err)
}
