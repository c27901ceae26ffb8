package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"TokenSentinel/internal/engine"
	"TokenSentinel/internal/governor"
	"TokenSentinel/internal/model"
	"TokenSentinel/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// operatorReviewer names the operator in split review columns and proposals.
const operatorReviewer = "operator"

var (
	splitReasoning   string
	distributeAmount string
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Inspect and govern the profit allocation split",
}

var splitActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active split",
	Args:  cobra.NoArgs,
	RunE:  runSplitActive,
}

var splitProposeCmd = &cobra.Command{
	Use:   "propose <reinvestment> <treasury> <reward> <originator>",
	Short: "Propose a new split; the four percentages must sum to 100",
	Args:  cobra.ExactArgs(4),
	RunE:  runSplitPropose,
}

var splitApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a proposed split, making it active",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplitReview(true),
}

var splitRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a proposed split",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplitReview(false),
}

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Distribute profit across the pools under the active split",
	Long: `Distribute sends one transfer per pool for a new profit event, after a
governor review. Without --amount the pending profit is distributed.`,
	Args: cobra.NoArgs,
	RunE: runDistribute,
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry failed pool transfers and unpaid rewards inside their lookback windows",
	Args:  cobra.NoArgs,
	RunE:  runRetry,
}

var verifyProofCmd = &cobra.Command{
	Use:   "verify-proof <id>",
	Short: "Recompute a stored reward selection proof",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifyProof,
}

func init() {
	splitProposeCmd.Flags().StringVar(&splitReasoning, "reason", "operator proposal", "Reasoning recorded with the proposal")
	splitCmd.AddCommand(splitActiveCmd, splitProposeCmd, splitApproveCmd, splitRejectCmd)

	distributeCmd.Flags().StringVar(&distributeAmount, "amount", "", "Profit to distribute, defaults to the pending profit")
}

func operatorProposal(a governor.Action, reasoning string) governor.Proposal {
	return governor.Proposal{Action: a, Source: operatorReviewer, Confidence: 1, Reasoning: reasoning}
}

// printResult reports a reviewed proposal. Only review and execution failures are errors.
func printResult(cmd *cobra.Command, res engine.Result, err error) error {
	if err != nil {
		if res.Review.ID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "review %s: %s\n", res.Review.ID, res.Outcome)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "review %s: %s\n", res.Review.ID, res.Outcome)
	if len(res.Review.Guardrails) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "guardrails: %s\n", strings.Join(res.Review.Guardrails, ", "))
	}
	return nil
}

func runSplitActive(cmd *cobra.Command, args []string) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sp, err := a.allocator.ActiveSplit(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "split %s (%s)\n", sp.ID, sp.Status)
	for _, pool := range model.Pools {
		fmt.Fprintf(out, "  %-13s %6.2f%%\n", pool, sp.Percentages.Share(pool))
	}
	return nil
}

func runSplitPropose(cmd *cobra.Command, args []string) error {
	var vals [4]float64
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("percentage %q: %w", arg, err)
		}
		vals[i] = v
	}

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	p := model.Percentages{Reinvestment: vals[0], Treasury: vals[1], Reward: vals[2], Originator: vals[3]}
	id, err := a.allocator.Propose(cmd.Context(), p, splitReasoning, 1, nil)
	if err != nil {
		return fmt.Errorf("propose split: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "proposed split %s\n", id)
	return nil
}

func runSplitReview(approve bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := build(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.allocator.Review(cmd.Context(), args[0], approve, operatorReviewer); err != nil {
			return fmt.Errorf("review split %s: %w", args[0], err)
		}
		verb := "rejected"
		if approve {
			verb = "approved"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "split %s %s\n", args[0], verb)
		return nil
	}
}

func runDistribute(cmd *cobra.Command, args []string) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var amount decimal.Decimal
	if distributeAmount != "" {
		if amount, err = parseDecimal("amount", distributeAmount); err != nil {
			return err
		}
	} else if amount, err = a.engine.PendingProfit(cmd.Context()); err != nil {
		return fmt.Errorf("pending profit: %w", err)
	}
	if !amount.IsPositive() {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to distribute")
		return nil
	}

	res, err := a.engine.Execute(cmd.Context(), operatorProposal(governor.ProfitDistribution{
		EventID: uuid.NewString(),
		Asset:   cfg.Curve.QuoteAsset,
		Amount:  amount,
	}, "operator distribution"), nil)
	return printResult(cmd, res, err)
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.allocator.RetryFailed(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "transfers: attempted %d, succeeded %d, failed %d, skipped %d\n",
		r.Attempted, r.Succeeded, r.Failed, r.Skipped)

	p, err := a.selector.RetryUnpaid(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rewards: attempted %d, paid %d, failed %d, skipped %d\n",
		p.Attempted, p.Paid, p.Failed, p.Skipped)
	return nil
}

func runVerifyProof(cmd *cobra.Command, args []string) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	p, ok, err := a.selector.VerifyStored(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no proof %s", args[0])
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "proof %s: winner %s, index %d of %d, draw %d / %d\n",
		p.ID, p.Winner, p.Index, len(p.Candidates), p.DrawValue, p.TotalWeight)
	fmt.Fprintf(out, "entropy %s block %s at height %d\n", p.EntropySource, p.BlockID, p.BlockHeight)
	if !ok {
		return fmt.Errorf("proof %s does not verify", p.ID)
	}
	fmt.Fprintln(out, "verified")
	return nil
}
