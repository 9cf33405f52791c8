package main

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/config"
	"github.com/nao1215/xspider/internal/credential"
	"github.com/nao1215/xspider/internal/graphstore"
	"github.com/nao1215/xspider/internal/model"
	"github.com/nao1215/xspider/internal/pipeline"
	"github.com/nao1215/xspider/internal/traversal"
	"github.com/nao1215/xspider/internal/upstream"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed...]",
		Short: "Crawl the follow graph outward from seed accounts",
		Long: `Crawl resolves the seed accounts and walks who-they-follow breadth first,
storing every account and follow edge in the local database.

Seeds may be numeric ids, handles ("@name" or "name") or profile URLs.
Nodes at the maximum depth are expanded; the accounts they follow are
stored but not expanded further.

Press Ctrl+C to stop gracefully: no new accounts are fetched, in-flight
requests finish, and the partial graph is kept. Press Ctrl+C again to abort.

Examples:
  # Crawl two levels out from two seeds
  xspider crawl @alice @bob

  # Read seeds from a file, one per line
  xspider crawl --seeds-file seeds.txt --depth 1

  # Route requests through embedded Tor and expose metrics
  xspider crawl --tor --metrics-addr :9090 @alice`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}
	addCrawlFlags(cmd)
	return cmd
}

// addCrawlFlags registers the flags shared by crawl and run.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum traversal depth (seeds are depth 0)")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of concurrent traversal workers")
	cmd.Flags().Int("max-following", config.DefaultMaxFanOutPerUser,
		"Maximum followed accounts read per account")
	cmd.Flags().StringP("seeds-file", "s", "",
		"File with one seed per line (# starts a comment)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and use it as an egress route")
	cmd.Flags().Bool("probe-egress", false,
		"Probe every egress route before crawling")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the crawl (e.g. :9090)")
}

// applyCrawlFlags overrides cfg with crawl flags the user set explicitly,
// then appends seeds from args and --seeds-file.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("depth") {
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return err
		}
	}
	if flags.Changed("max-following") {
		if cfg.MaxFanOutPerUser, err = flags.GetInt("max-following"); err != nil {
			return err
		}
	}
	if flags.Changed("tor") {
		if cfg.UseEmbeddedTor, err = flags.GetBool("tor"); err != nil {
			return err
		}
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return err
	}

	seedsFile, err := flags.GetString("seeds-file")
	if err != nil {
		return err
	}
	if seedsFile != "" {
		seeds, err := readSeedsFile(seedsFile)
		if err != nil {
			return err
		}
		cfg.Seeds = append(cfg.Seeds, seeds...)
	}
	cfg.Seeds = append(cfg.Seeds, args...)
	return nil
}

// readSeedsFile reads one seed per line, skipping blanks and comments.
func readSeedsFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open seeds file: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		if line = strings.TrimSpace(line); line != "" {
			seeds = append(seeds, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seeds file: %w", err)
	}
	return seeds, nil
}

// parseSeedRefs parses every seed and reports all invalid ones together.
func parseSeedRefs(seeds []string) ([]model.SeedRef, error) {
	refs := make([]model.SeedRef, 0, len(seeds))
	var errs []error
	for _, s := range seeds {
		ref, err := model.NewSeedRef(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %q: %w", s, err))
			continue
		}
		refs = append(refs, ref)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return refs, nil
}

// newFetcher adapts the upstream client to the traversal engine.
func newFetcher(client *upstream.Client) traversal.Fetcher {
	return traversal.FetcherFunc(func(ctx context.Context, nodeID string, maxResults int) traversal.Iterator {
		return client.IterateFollowing(ctx, nodeID, maxResults)
	})
}

// newTraversalEngine builds the crawler from cfg.
func newTraversalEngine(cfg *config.Config, client *upstream.Client, store graphstore.Store, logger *slog.Logger) *traversal.Engine {
	return traversal.NewEngine(newFetcher(client), store,
		traversal.WithMaxDepth(cfg.MaxDepth),
		traversal.WithConcurrency(cfg.Concurrency),
		traversal.WithMaxFanOut(cfg.MaxFanOutPerUser),
		traversal.WithLogger(logger),
	)
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd, cfg, args); err != nil {
		return err
	}
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	refs, err := parseSeedRefs(cfg.Seeds)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg, cmd.ErrOrStderr())
	probe, err := cmd.Flags().GetBool("probe-egress")
	if err != nil {
		return err
	}

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
	)

	run := pipeline.NewRun(refs)
	runErr := p.Execute(ctx, run)
	printCrawlSummary(cmd.OutOrStdout(), run, env.session)
	return runErr
}

// crawlEnv holds everything a crawl needs and must release afterwards.
type crawlEnv struct {
	store       *graphstore.SQLiteStore
	session     *upstreamSession
	engine      *traversal.Engine
	stopMetrics func()
	logger      *slog.Logger
}

// prepareCrawl opens the store, builds the upstream session and the engine,
// and starts the metrics server when configured.
func prepareCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer, probe bool) (*crawlEnv, error) {
	store, err := openStore(cfg, true)
	if err != nil {
		return nil, err
	}

	session, err := newUpstreamSession(ctx, cfg, logger, stderr)
	if err != nil {
		_ = store.Close() //nolint:errcheck // best effort cleanup
		return nil, err
	}
	if probe {
		session.probeEgress(ctx, stderr)
	}

	env := &crawlEnv{
		store:       store,
		session:     session,
		engine:      newTraversalEngine(cfg, session.client, store, logger),
		stopMetrics: func() {},
		logger:      logger,
	}
	if cfg.MetricsAddr != "" {
		env.stopMetrics = startMetricsServer(cfg.MetricsAddr, logger)
	}
	return env, nil
}

// Close stops the metrics server, the upstream session and the store.
func (e *crawlEnv) Close() {
	e.stopMetrics()
	e.session.Close()
	if err := e.store.Close(); err != nil {
		e.logger.Error("failed to close database", "error", err)
	}
}

// handleSignals stops the crawl on the first SIGINT/SIGTERM and cancels
// everything on the second. The returned function unregisters the handler.
func handleSignals(stop func(), cancel context.CancelFunc, logger *slog.Logger, w io.Writer) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Info("received shutdown signal, stopping crawl")
		fmt.Fprintln(w, "\nStopping: waiting for in-flight requests (press Ctrl+C again to abort)...")
		stop()

		select {
		case <-sigCh:
			logger.Warn("received second signal, aborting")
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// printCrawlSummary writes the run summary shown after a crawl.
func printCrawlSummary(w io.Writer, run *pipeline.Run, session *upstreamSession) {
	if run == nil {
		return
	}
	for _, u := range run.Unresolved {
		fmt.Fprintf(w, "Seed %s not resolved: %v\n", u.Ref, u.Err)
	}

	res := run.Crawl
	if res == nil {
		return
	}

	fmt.Fprintf(w, "\nCrawl %s\n", res.RunID)
	fmt.Fprintf(w, "  seeds:            %d\n", len(res.Seeds))
	fmt.Fprintf(w, "  max depth:        %d\n", res.MaxDepth)
	fmt.Fprintf(w, "  completed:        %d\n", res.Completed)
	fmt.Fprintf(w, "  failed:           %d\n", res.Failed)
	fmt.Fprintf(w, "  pending at stop:  %d\n", res.PendingAtStop)
	fmt.Fprintf(w, "  stopped early:    %t\n", res.Stopped)
	fmt.Fprintf(w, "  duration:         %s\n", res.Duration().Round(time.Millisecond))

	if causes := failureCauses(res.Failures); len(causes) > 0 {
		fmt.Fprintln(w, "  failure causes:")
		for _, c := range causes {
			fmt.Fprintf(w, "    %-22s %d\n", c.cause, c.count)
		}
	}

	if session != nil {
		stats := session.creds.Stats()
		fmt.Fprintf(w, "  credentials:      %d total, %d available, %d rate limited, %d banned\n",
			stats.Total, stats.Available, stats.RateLimited, stats.Banned)
		for _, rs := range session.routes.Stats() {
			fmt.Fprintf(w, "  egress:           %s\n", rs)
		}
	}
}

type causeCount struct {
	cause string
	count int
}

// failureCauses groups node failures by error category, most frequent first.
func failureCauses(failures []traversal.NodeFailure) []causeCount {
	counts := make(map[string]int)
	for _, f := range failures {
		counts[failureCause(f.Err)]++
	}
	out := make([]causeCount, 0, len(counts))
	for cause, n := range counts {
		out = append(out, causeCount{cause: cause, count: n})
	}
	slices.SortFunc(out, func(a, b causeCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return strings.Compare(a.cause, b.cause)
	})
	return out
}

// failureCause names the category of a fetch error.
func failureCause(err error) string {
	switch {
	case errors.Is(err, credential.ErrAuthExhausted):
		return "auth exhausted"
	case errors.Is(err, upstream.ErrRateLimited):
		return "rate limited"
	case errors.Is(err, upstream.ErrAuthFailed):
		return "auth failed"
	case errors.Is(err, upstream.ErrNodeUnavailable):
		return "account unavailable"
	case errors.Is(err, upstream.ErrMalformedResponse):
		return "malformed response"
	case errors.Is(err, upstream.ErrUnexpectedStatus):
		return "unexpected status"
	case errors.Is(err, upstream.ErrNetworkError):
		return "network error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}
