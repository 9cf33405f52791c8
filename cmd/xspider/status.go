package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/graphstore"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database contents and recent crawl runs",
		Long: `Status prints how many accounts, edges and rankings are stored and lists
the most recent crawl runs with their outcome.`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}
	cmd.Flags().IntP("runs", "r", 5, "Number of recent runs to show")
	cmd.Flags().Bool("failures", false, "List failed accounts of the latest run")
	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("runs")
	if err != nil {
		return err
	}
	showFailures, err := cmd.Flags().GetBool("failures")
	if err != nil {
		return err
	}

	setupLogger(cfg, cmd.ErrOrStderr())

	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Database: %s\n", store.Path())
	fmt.Fprintf(w, "  accounts: %d\n", counts.Nodes)
	fmt.Fprintf(w, "  edges:    %d\n", counts.Edges)
	fmt.Fprintf(w, "  ranked:   %d\n", counts.Rankings)
	fmt.Fprintf(w, "  runs:     %d\n", counts.Runs)

	if len(runs) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nRecent runs:")
	for _, r := range runs[:min(max(limit, 0), len(runs))] {
		printRunRecord(w, r)
	}

	if showFailures {
		failures, err := store.Failures(ctx, runs[0].ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nFailed accounts in %s:\n", runs[0].ID)
		for _, f := range failures {
			fmt.Fprintf(w, "  %s  %s  %s\n", f.NodeID, f.FailedAt.Local().Format(time.DateTime), f.Cause)
		}
	}
	return nil
}

// printRunRecord writes one line per run.
func printRunRecord(w io.Writer, r graphstore.RunRecord) {
	state := "complete"
	switch {
	case r.Error != "":
		state = "error: " + r.Error
	case r.Stopped:
		state = "stopped"
	case r.FinishedAt.IsZero():
		state = "running"
	}
	fmt.Fprintf(w, "  %s  %s  depth %d  seeds %d  completed %d  failed %d  pending %d  %s\n",
		r.ID, r.StartedAt.Local().Format(time.DateTime), r.MaxDepth, len(r.Seeds),
		r.Completed, r.Failed, r.PendingAtStop, state)
}
