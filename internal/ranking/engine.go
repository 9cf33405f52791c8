package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/xspider/internal/graphstore"
	"github.com/nao1215/xspider/internal/model"
)

// Engine turns a graph snapshot into ranking records.
type Engine struct {
	authority  AuthorityOptions
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuthorityOptions sets the PageRank parameters.
func WithAuthorityOptions(o AuthorityOptions) Option {
	return func(e *Engine) {
		e.authority = o
	}
}

// WithThresholds sets the category boundaries.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) {
		e.thresholds = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the computed-at time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine. Options are validated on every Rank call
// so misconfiguration surfaces as an error, not a panic.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		authority:  DefaultAuthorityOptions(),
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary describes one ranking run.
type Summary struct {
	Nodes      int
	Edges      int
	Iterations int
	Converged  bool
	Delta      float64
	Categories map[model.Category]int
	ComputedAt time.Time
}

// Rank scores every node of g. Records are ordered by rank: descending
// hidden score, ties broken by lower node id, starting at 1.
func (e *Engine) Rank(ctx context.Context, g *graphstore.Graph) ([]model.RankingRecord, *Summary, error) {
	if err := e.thresholds.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	auth, err := ComputeAuthority(g, e.authority)
	if err != nil {
		return nil, nil, err
	}
	if !auth.Converged {
		e.logger.Warn("authority did not converge, using last estimate",
			"iterations", auth.Iterations,
			"delta", auth.Delta,
			"tolerance", e.authority.Tolerance,
		)
	}

	computedAt := e.now().UTC()
	records := make([]model.RankingRecord, 0, g.Len())
	for _, id := range g.IDs {
		attrs := g.Attrs[id]
		score := auth.Scores[id]
		seedFollowers := g.SeedFollowers(id)
		records = append(records, model.RankingRecord{
			NodeID:         id,
			Handle:         attrs.Handle,
			Authority:      score,
			InDegree:       g.InDegree(id),
			OutDegree:      g.OutDegree(id),
			FollowersCount: attrs.FollowersCount,
			SeedFollowers:  seedFollowers,
			Hidden:         ComputeHiddenScore(score, attrs.FollowersCount),
			Category:       Categorize(score, attrs.FollowersCount, seedFollowers, e.thresholds),
			ComputedAt:     computedAt,
		})
	}

	records = TopK(records, len(records), ScoreHidden)
	summary := &Summary{
		Nodes:      g.Len(),
		Edges:      g.EdgeCount(),
		Iterations: auth.Iterations,
		Converged:  auth.Converged,
		Delta:      auth.Delta,
		Categories: make(map[model.Category]int),
		ComputedAt: computedAt,
	}
	for i := range records {
		records[i].Rank = i + 1
		summary.Categories[records[i].Category]++
	}
	return records, summary, nil
}

// Run loads the graph from store, ranks it, and replaces the stored
// ranking table.
func (e *Engine) Run(ctx context.Context, store graphstore.Store) (*Summary, error) {
	g, err := store.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	start := time.Now()
	records, summary, err := e.Rank(ctx, g)
	if err != nil {
		return nil, err
	}

	if err := store.ReplaceRankings(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to store rankings: %w", err)
	}

	e.logger.Info("ranking complete",
		"nodes", summary.Nodes,
		"edges", summary.Edges,
		"iterations", summary.Iterations,
		"converged", summary.Converged,
		"duration", time.Since(start),
	)
	return summary, nil
}
