package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/xspider/internal/credential"
	"github.com/nao1215/xspider/internal/graphstore"
	"github.com/nao1215/xspider/internal/model"
	"github.com/nao1215/xspider/internal/ranking"
	"github.com/nao1215/xspider/internal/report"
	"github.com/nao1215/xspider/internal/traversal"
)

var (
	// ErrNoSeedsResolved is returned when none of the seeds could be resolved.
	ErrNoSeedsResolved = errors.New("no seed could be resolved")

	// ErrNoResolver marks a handle seed given to a step without a resolver.
	ErrNoResolver = errors.New("handle seeds need a resolver")
)

// SeedResolver looks up a handle. upstream.Client satisfies it.
type SeedResolver interface {
	LookupUser(ctx context.Context, handle string) (model.Node, error)
}

// ResolveSeedsStep turns seed references into nodes. Numeric ids pass
// through untouched; handles are looked up concurrently.
type ResolveSeedsStep struct {
	resolver    SeedResolver
	concurrency int
	logger      *slog.Logger
}

// ResolveSeedsStepOption configures a ResolveSeedsStep.
type ResolveSeedsStepOption func(*ResolveSeedsStep)

// WithResolveConcurrency sets how many lookups run at once.
func WithResolveConcurrency(n int) ResolveSeedsStepOption {
	return func(s *ResolveSeedsStep) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithResolveLogger sets the logger.
func WithResolveLogger(logger *slog.Logger) ResolveSeedsStepOption {
	return func(s *ResolveSeedsStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewResolveSeedsStep creates the seed resolution step. resolver may be
// nil when every seed is a numeric id.
func NewResolveSeedsStep(resolver SeedResolver, opts ...ResolveSeedsStepOption) *ResolveSeedsStep {
	s := &ResolveSeedsStep{
		resolver:    resolver,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ResolveSeedsStep) Name() string {
	return "resolve_seeds"
}

// Do resolves run.SeedRefs into run.Seeds. Seeds keep the input order and
// duplicates collapse. Unresolvable handles are recorded in
// run.Unresolved; the step only fails when nothing resolved or when the
// credentials are exhausted.
func (s *ResolveSeedsStep) Do(ctx context.Context, run *Run) error {
	resolved := make([]model.Node, len(run.SeedRefs))
	ok := make([]bool, len(run.SeedRefs))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, ref := range run.SeedRefs {
		if ref.IsID() {
			resolved[i] = model.Node{ID: ref.Value(), IsSeed: true}
			ok[i] = true
			continue
		}
		if s.resolver == nil {
			mu.Lock()
			run.Unresolved = append(run.Unresolved, SeedError{Ref: ref, Err: ErrNoResolver})
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			node, err := s.resolver.LookupUser(gctx, ref.Value())
			if err != nil {
				if errors.Is(err, credential.ErrAuthExhausted) {
					return err
				}
				s.logger.Warn("seed not resolved", "seed", ref.String(), "error", err)
				mu.Lock()
				run.Unresolved = append(run.Unresolved, SeedError{Ref: ref, Err: err})
				mu.Unlock()
				return nil
			}

			node.IsSeed = true
			resolved[i] = node
			ok[i] = true
			s.logger.Debug("seed resolved", "seed", ref.String(), "id", node.ID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to resolve seeds: %w", err)
	}

	seen := make(map[string]bool, len(resolved))
	for i, node := range resolved {
		if !ok[i] || seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		run.Seeds = append(run.Seeds, node)
	}

	if len(run.Seeds) == 0 {
		return ErrNoSeedsResolved
	}
	s.logger.Info("seeds resolved", "resolved", len(run.Seeds), "unresolved", len(run.Unresolved))
	return nil
}

// Crawler runs a traversal. traversal.Engine satisfies it.
type Crawler interface {
	Run(ctx context.Context, seeds []model.Node) (*traversal.Result, error)
}

// CrawlStep crawls from run.Seeds.
type CrawlStep struct {
	crawler Crawler
	logger  *slog.Logger
}

// NewCrawlStep creates the crawl step.
func NewCrawlStep(crawler Crawler, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{crawler: crawler, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do runs the traversal. A crawl that stops early is not an error: the
// partial graph is valid and later steps still rank it.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	result, err := s.crawler.Run(ctx, run.Seeds)
	run.Crawl = result
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		s.logger.Warn("some nodes failed", "failed", result.Failed, "completed", result.Completed)
	}
	return nil
}

// Ranker recomputes rankings. ranking.Engine satisfies it.
type Ranker interface {
	Run(ctx context.Context, store graphstore.Store) (*ranking.Summary, error)
}

// RankStep ranks the stored graph and replaces the ranking table.
type RankStep struct {
	ranker Ranker
	store  graphstore.Store
}

// NewRankStep creates the ranking step.
func NewRankStep(ranker Ranker, store graphstore.Store) *RankStep {
	return &RankStep{ranker: ranker, store: store}
}

// Name returns the step name.
func (s *RankStep) Name() string {
	return "rank"
}

// Do runs the ranking.
func (s *RankStep) Do(ctx context.Context, run *Run) error {
	summary, err := s.ranker.Run(ctx, s.store)
	if err != nil {
		return err
	}
	run.Ranking = summary
	return nil
}

// ExportStep writes the ranking table, and optionally nodes and edges.
type ExportStep struct {
	store  graphstore.Store
	format report.Format
	dir    string
	topK   int
	graph  bool
	output io.Writer
	logger *slog.Logger
}

// ExportStepOption configures an ExportStep.
type ExportStepOption func(*ExportStep)

// WithExportDir writes files into dir instead of to the output writer.
func WithExportDir(dir string) ExportStepOption {
	return func(s *ExportStep) {
		s.dir = dir
	}
}

// WithExportTopK limits the export to the k best ranked records.
// 0 exports everything.
func WithExportTopK(k int) ExportStepOption {
	return func(s *ExportStep) {
		if k >= 0 {
			s.topK = k
		}
	}
}

// WithExportGraph also writes nodes and edges files. It needs an export
// directory and a format that supports graph output.
func WithExportGraph(graph bool) ExportStepOption {
	return func(s *ExportStep) {
		s.graph = graph
	}
}

// WithExportWriter sets the destination used when no directory is set.
func WithExportWriter(w io.Writer) ExportStepOption {
	return func(s *ExportStep) {
		if w != nil {
			s.output = w
		}
	}
}

// WithExportLogger sets the logger.
func WithExportLogger(logger *slog.Logger) ExportStepOption {
	return func(s *ExportStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewExportStep creates the export step.
func NewExportStep(store graphstore.Store, format report.Format, opts ...ExportStepOption) *ExportStep {
	s := &ExportStep{
		store:  store,
		format: format,
		output: os.Stdout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do writes the export.
func (s *ExportStep) Do(ctx context.Context, run *Run) error {
	records, err := s.store.Rankings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rankings: %w", err)
	}
	if s.topK > 0 && len(records) > s.topK {
		records = records[:s.topK]
	}

	if s.dir == "" {
		w, err := report.NewWriter(s.format, s.output)
		if err != nil {
			return err
		}
		return w.WriteRankings(records)
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(s.dir, "rankings"+s.format.Extension())
	if err := writeFile(path, func(f io.Writer) error {
		w, err := report.NewWriter(s.format, f)
		if err != nil {
			return err
		}
		return w.WriteRankings(records)
	}); err != nil {
		return err
	}
	run.Exported = append(run.Exported, path)

	if s.graph {
		paths, err := s.exportGraph(ctx)
		run.Exported = append(run.Exported, paths...)
		if err != nil {
			return err
		}
	}

	s.logger.Info("export complete", "files", run.Exported)
	return nil
}

func (s *ExportStep) exportGraph(ctx context.Context) ([]string, error) {
	nodes, err := s.store.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := s.store.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}

	// Markdown has no graph rendering; fall back to CSV for the raw data.
	format := s.format
	if format == report.FormatMarkdown {
		format = report.FormatCSV
	}

	nodesPath := filepath.Join(s.dir, "nodes"+format.Extension())
	if err := writeFile(nodesPath, func(f io.Writer) error {
		w, err := report.NewGraphWriter(format, f)
		if err != nil {
			return err
		}
		return w.WriteNodes(nodes)
	}); err != nil {
		return nil, err
	}

	edgesPath := filepath.Join(s.dir, "edges"+format.Extension())
	if err := writeFile(edgesPath, func(f io.Writer) error {
		w, err := report.NewGraphWriter(format, f)
		if err != nil {
			return err
		}
		return w.WriteEdges(edges)
	}); err != nil {
		return []string{nodesPath}, err
	}

	return []string{nodesPath, edgesPath}, nil
}

// writeFile creates path and hands it to write, reporting close errors.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
