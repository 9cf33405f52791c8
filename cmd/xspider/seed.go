package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/pipeline"
	"github.com/nao1215/xspider/internal/report"
)

// NewSeedCmd creates the seed command group.
func NewSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Work with seed accounts",
	}
	cmd.AddCommand(newSeedResolveCmd())
	return cmd
}

// newSeedResolveCmd creates "seed resolve".
func newSeedResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve handle...",
		Short: "Resolve handles to numeric account ids",
		Long: `Resolve looks up each handle and prints its numeric id and profile.
Numeric ids are printed as given. Putting ids instead of handles in the
configuration file saves one request per seed on every crawl.

Examples:
  xspider seed resolve @alice bob https://x.com/carol
  xspider seed resolve --format json @alice`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSeedResolveCmd,
	}
	cmd.Flags().StringP("format", "f", string(report.FormatText), formatFlagUsage())
	return cmd
}

// runSeedResolveCmd executes "seed resolve".
func runSeedResolveCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Seeds = args
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	refs, err := parseSeedRefs(args)
	if err != nil {
		return err
	}
	format, err := getFormatFlag(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg, cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	session, err := newUpstreamSession(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer session.Close()

	run := pipeline.NewRun(refs)
	step := pipeline.NewResolveSeedsStep(session.client, pipeline.WithResolveLogger(logger))
	resolveErr := step.Do(ctx, run)

	for _, u := range run.Unresolved {
		fmt.Fprintf(cmd.ErrOrStderr(), "Seed %s not resolved: %v\n", u.Ref, u.Err)
	}
	if len(run.Seeds) > 0 {
		if err := writeSeeds(cmd.OutOrStdout(), format, run); err != nil {
			return err
		}
	}
	return resolveErr
}

// writeSeeds prints the resolved seed nodes.
func writeSeeds(w io.Writer, format report.Format, run *pipeline.Run) error {
	writer, err := report.NewGraphWriter(format, w)
	if err != nil {
		return err
	}
	return writer.WriteNodes(run.Seeds)
}
