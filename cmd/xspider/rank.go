package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/config"
	"github.com/nao1215/xspider/internal/model"
	"github.com/nao1215/xspider/internal/ranking"
	"github.com/nao1215/xspider/internal/report"
)

// NewRankCmd creates the rank command.
func NewRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Recompute rankings from the stored graph",
		Long: `Rank computes authority scores over the stored follow graph, assigns
each account a category, replaces the stored ranking table and prints the
top accounts ordered by hidden score.

The hidden score is authority / ln(followers + 2): accounts the crawled
neighbourhood trusts more than their public following suggests rank first.

Examples:
  # Print the top 100 accounts
  xspider rank

  # Top 20 as Markdown, with a stricter convergence tolerance
  xspider rank --top 20 --tolerance 1e-8 --format markdown -o top.md`,
		Args: cobra.NoArgs,
		RunE: runRankCmd,
	}

	cmd.Flags().IntP("top", "k", config.DefaultTopK, "Number of accounts to print")
	addRankParamFlags(cmd)
	cmd.Flags().String("by", "hidden", "Order printed accounts by: hidden, authority, seed-followers")
	cmd.Flags().StringP("format", "f", string(report.FormatText), formatFlagUsage())
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	return cmd
}

// addRankParamFlags registers the authority parameters shared by rank and run.
func addRankParamFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("damping", config.DefaultDampingFactor, "Damping factor in (0, 1)")
	cmd.Flags().Int("iterations", config.DefaultMaxIterations, "Maximum power iterations")
	cmd.Flags().Float64("tolerance", config.DefaultTolerance, "L1 convergence tolerance")
}

// applyRankFlags overrides cfg with ranking flags the user set explicitly.
func applyRankFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("top") {
		if cfg.TopK, err = flags.GetInt("top"); err != nil {
			return err
		}
	}
	if flags.Changed("damping") {
		if cfg.DampingFactor, err = flags.GetFloat64("damping"); err != nil {
			return err
		}
	}
	if flags.Changed("iterations") {
		if cfg.MaxIterations, err = flags.GetInt("iterations"); err != nil {
			return err
		}
	}
	if flags.Changed("tolerance") {
		if cfg.Tolerance, err = flags.GetFloat64("tolerance"); err != nil {
			return err
		}
	}
	return nil
}

// runRankCmd executes the rank command.
func runRankCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRankFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	format, err := getFormatFlag(cmd)
	if err != nil {
		return err
	}
	by, err := cmd.Flags().GetString("by")
	if err != nil {
		return err
	}
	field, err := ranking.ParseScoreField(by)
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg, cmd.ErrOrStderr())

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	summary, err := newRankingEngine(cfg, logger).Run(ctx, store)
	if err != nil {
		return fmt.Errorf("ranking failed: %w", err)
	}
	printRankSummary(cmd.ErrOrStderr(), summary)

	records, err := store.Rankings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rankings: %w", err)
	}
	top := ranking.TopK(records, cfg.TopK, field)

	return withOutput(cmd, output, func(w io.Writer) error {
		writer, err := report.NewWriter(format, w)
		if err != nil {
			return err
		}
		return writer.WriteRankings(top)
	})
}

// printRankSummary writes a short account of the ranking run.
func printRankSummary(w io.Writer, s *ranking.Summary) {
	status := "converged"
	if !s.Converged {
		status = "did not converge"
	}
	fmt.Fprintf(w, "Ranked %d accounts over %d edges: %s after %d iterations (delta %.2e) at %s\n",
		s.Nodes, s.Edges, status, s.Iterations, s.Delta, s.ComputedAt.Format(time.RFC3339))
	for _, c := range model.Categories() {
		if n := s.Categories[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c, n)
		}
	}
}
