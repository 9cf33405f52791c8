package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/config"
	"github.com/nao1215/xspider/internal/pipeline"
	"github.com/nao1215/xspider/internal/report"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [seed...]",
		Short: "Crawl, rank and export in one go",
		Long: `Run resolves the seeds, crawls, ranks the resulting graph and exports the
rankings, in that order. A crawl stopped with Ctrl+C still ranks and
exports the partial graph.

Examples:
  # Crawl from two seeds and print the top 100 as a table
  xspider run @alice @bob --format text

  # Write rankings, nodes and edges as CSV into ./out
  xspider run --seeds-file seeds.txt --output-dir out --graph`,
		Args: cobra.ArbitraryArgs,
		RunE: runRunCmd,
	}

	addCrawlFlags(cmd)
	addRankParamFlags(cmd)
	cmd.Flags().IntP("top", "k", config.DefaultTopK, "Number of accounts to export")
	cmd.Flags().StringP("format", "f", string(report.FormatText), formatFlagUsage())
	cmd.Flags().StringP("output-dir", "o", "", "Write export files into this directory instead of stdout")
	cmd.Flags().Bool("graph", false, "Also export nodes and edges (needs --output-dir)")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd, cfg, args); err != nil {
		return err
	}
	if err := applyRankFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	refs, err := parseSeedRefs(cfg.Seeds)
	if err != nil {
		return err
	}

	format, err := getFormatFlag(cmd)
	if err != nil {
		return err
	}
	outputDir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return err
	}
	graph, err := cmd.Flags().GetBool("graph")
	if err != nil {
		return err
	}
	if graph && outputDir == "" {
		return errors.New("--graph needs --output-dir")
	}
	probe, err := cmd.Flags().GetBool("probe-egress")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg, cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := prepareCrawl(ctx, cfg, logger, cmd.ErrOrStderr(), probe)
	if err != nil {
		return err
	}
	defer env.Close()

	stopSignals := handleSignals(env.engine.Stop, cancel, logger, cmd.ErrOrStderr())
	defer stopSignals()

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddSteps(
		pipeline.NewResolveSeedsStep(env.session.client, pipeline.WithResolveLogger(logger)),
		pipeline.NewCrawlStep(env.engine, logger),
		pipeline.NewRankStep(newRankingEngine(cfg, logger), env.store),
		pipeline.NewExportStep(env.store, format,
			pipeline.WithExportDir(outputDir),
			pipeline.WithExportTopK(cfg.TopK),
			pipeline.WithExportGraph(graph),
			pipeline.WithExportWriter(cmd.OutOrStdout()),
			pipeline.WithExportLogger(logger),
		),
	)

	run := pipeline.NewRun(refs)
	runErr := p.Execute(ctx, run)

	// With stdout as the export target the summary goes to stderr so the
	// export stays machine readable.
	summaryOut := cmd.ErrOrStderr()
	if outputDir != "" {
		summaryOut = cmd.OutOrStdout()
	}
	printCrawlSummary(summaryOut, run, env.session)
	if run.Ranking != nil {
		printRankSummary(summaryOut, run.Ranking)
	}
	for _, path := range run.Exported {
		fmt.Fprintf(summaryOut, "Wrote %s\n", path)
	}
	return runErr
}
