package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/xspider/internal/credential"
	"github.com/nao1215/xspider/internal/graphstore"
	"github.com/nao1215/xspider/internal/model"
)

// ErrNoSeeds is returned by Run when the seed list is empty.
var ErrNoSeeds = errors.New("at least one seed is required")

// ErrAlreadyRunning is returned when Run is called on an engine that has
// not finished its previous run.
var ErrAlreadyRunning = errors.New("traversal already running")

// Iterator is a pull-based sequence of followed accounts.
type Iterator interface {
	Next() bool
	Target() model.Node
	Err() error
}

// Fetcher opens following-list iterators.
type Fetcher interface {
	IterateFollowing(ctx context.Context, nodeID string, maxResults int) Iterator
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, nodeID string, maxResults int) Iterator

// IterateFollowing implements Fetcher.
func (f FetcherFunc) IterateFollowing(ctx context.Context, nodeID string, maxResults int) Iterator {
	return f(ctx, nodeID, maxResults)
}

// NodeFailure describes a node whose following list could not be read.
type NodeFailure struct {
	NodeID string
	Depth  int
	Err    error
}

// Result summarizes a run. It is returned even when the run stopped early
// so callers can report partial progress.
type Result struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Seeds         []string
	MaxDepth      int
	Completed     int
	Failed        int
	PendingAtStop int
	Failures      []NodeFailure
	Stopped       bool
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Engine runs breadth-first traversals. An Engine runs one traversal at a
// time; Stop affects the current run only.
type Engine struct {
	fetcher Fetcher
	store   graphstore.Store

	maxDepth     int
	concurrency  int
	maxFanOut    int
	drainTimeout time.Duration
	runID        string
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the deepest level whose nodes are expanded. Seeds are
// depth 0, so 0 expands only the seeds.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth >= 0 {
			e.maxDepth = depth
		}
	}
}

// WithConcurrency sets the number of workers.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxFanOut caps how many followed accounts are read per node.
// 0 means no cap.
func WithMaxFanOut(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxFanOut = n
		}
	}
}

// WithDrainTimeout bounds how long in-flight fetches may keep running
// after the run is stopped.
func WithDrainTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.drainTimeout = d
		}
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
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

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine that reads through fetcher and writes to store.
func NewEngine(fetcher Fetcher, store graphstore.Store, opts ...Option) *Engine {
	e := &Engine{
		fetcher:      fetcher,
		store:        store,
		maxDepth:     2,
		concurrency:  5,
		maxFanOut:    500,
		drainTimeout: 30 * time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stop asks the current run to stop dequeuing. In-flight fetches are
// allowed to finish, bounded by the drain timeout. It is safe to call at
// any time, including when no run is active.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// run carries the mutable state of one traversal.
type run struct {
	ctx      context.Context
	frontier *Frontier
	runID    string

	mu     sync.Mutex
	result *Result
}

// Run traverses from seeds until the frontier drains, the context is
// cancelled, or Stop is called.
//
// Seeds are stored at depth 0 with is_seed set before any worker starts.
// The returned error is non-nil only for setup failures and for
// credential.ErrAuthExhausted; node-local failures are listed in
// Result.Failures.
func (e *Engine) Run(ctx context.Context, seeds []model.Node) (*Result, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &run{
		ctx:      runCtx,
		frontier: NewFrontier(),
		runID:    runID,
		result: &Result{
			RunID:     runID,
			StartedAt: e.now().UTC(),
			MaxDepth:  e.maxDepth,
		},
	}

	for _, s := range seeds {
		s.IsSeed = true
		s.Depth = 0
		if err := e.store.UpsertNode(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to store seed %s: %w", s.ID, err)
		}
		r.result.Seeds = append(r.result.Seeds, s.ID)
		r.frontier.Push(Entry{NodeID: s.ID, Depth: 0})
	}
	e.saveRun(ctx, r.result, nil)

	e.logger.Info("traversal started",
		"run_id", runID,
		"seeds", len(seeds),
		"max_depth", e.maxDepth,
		"concurrency", e.concurrency,
	)

	// Cancellation and Stop both end dequeuing.
	if runCtx.Err() != nil {
		r.frontier.Stop()
	}
	stopFrontier := context.AfterFunc(runCtx, r.frontier.Stop)
	defer stopFrontier()

	var g errgroup.Group
	for range e.concurrency {
		g.Go(func() error {
			return e.worker(r, cancel)
		})
	}
	runErr := g.Wait()

	result := r.result
	result.FinishedAt = e.now().UTC()
	result.PendingAtStop = r.frontier.Pending()
	result.Stopped = runCtx.Err() != nil

	e.saveRun(ctx, result, runErr)

	e.logger.Info("traversal finished",
		"run_id", runID,
		"completed", result.Completed,
		"failed", result.Failed,
		"pending_at_stop", result.PendingAtStop,
		"stopped", result.Stopped,
		"duration", result.Duration(),
	)

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// worker drains the frontier. It returns an error only when the run must
// abort.
func (e *Engine) worker(r *run, abort context.CancelFunc) error {
	for {
		entry, ok := r.frontier.Next()
		if !ok {
			return nil
		}

		inFlightNodes.Inc()
		err := e.expand(r, entry)
		inFlightNodes.Dec()
		r.frontier.Done(entry)

		if err == nil {
			r.mu.Lock()
			r.result.Completed++
			r.mu.Unlock()
			nodesTotal.WithLabelValues(model.NodeStateDone.String()).Inc()
			continue
		}

		r.mu.Lock()
		r.result.Failed++
		r.result.Failures = append(r.result.Failures, NodeFailure{NodeID: entry.NodeID, Depth: entry.Depth, Err: err})
		r.mu.Unlock()
		nodesTotal.WithLabelValues(model.NodeStateFailed.String()).Inc()

		if rerr := e.store.RecordFailure(context.WithoutCancel(r.ctx), graphstore.FailureRecord{
			RunID:    r.runID,
			NodeID:   entry.NodeID,
			Cause:    err.Error(),
			FailedAt: e.now().UTC(),
		}); rerr != nil {
			e.logger.Error("failed to record node failure", "node", entry.NodeID, "error", rerr)
		}

		if errors.Is(err, credential.ErrAuthExhausted) {
			e.logger.Error("aborting traversal, no usable credentials", "node", entry.NodeID, "error", err)
			abort()
			return err
		}
		e.logger.Warn("node failed", "node", entry.NodeID, "depth", entry.Depth, "error", err)
	}
}

// expand fetches the following list of one node and records every target.
func (e *Engine) expand(r *run, entry Entry) error {
	ctx, cancel := e.fetchContext(r.ctx)
	defer cancel()

	childDepth := entry.Depth + 1
	it := e.fetcher.IterateFollowing(ctx, entry.NodeID, e.maxFanOut)
	for it.Next() {
		target := it.Target()
		if target.ID == "" || target.ID == entry.NodeID {
			continue
		}

		target.Depth = childDepth
		target.IsSeed = false
		target.FirstSeenAt = time.Time{}
		if err := e.store.UpsertNode(ctx, target); err != nil {
			return fmt.Errorf("failed to store node %s: %w", target.ID, err)
		}
		if err := e.store.UpsertEdge(ctx, model.Edge{SourceID: entry.NodeID, TargetID: target.ID}); err != nil {
			return fmt.Errorf("failed to store edge %s->%s: %w", entry.NodeID, target.ID, err)
		}
		edgesTotal.Inc()

		if childDepth <= e.maxDepth {
			r.frontier.Push(Entry{NodeID: target.ID, Depth: childDepth})
		}
	}
	return it.Err()
}

// fetchContext detaches a fetch from run cancellation so in-flight work
// can finish, then cancels it drainTimeout after the run is stopped.
func (e *Engine) fetchContext(runCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(runCtx))
	var timer *time.Timer
	var mu sync.Mutex
	stop := context.AfterFunc(runCtx, func() {
		mu.Lock()
		defer mu.Unlock()
		timer = time.AfterFunc(e.drainTimeout, cancel)
	})
	return ctx, func() {
		stop()
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		cancel()
	}
}

func (e *Engine) saveRun(ctx context.Context, res *Result, runErr error) {
	rec := graphstore.RunRecord{
		ID:            res.RunID,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		Seeds:         res.Seeds,
		MaxDepth:      res.MaxDepth,
		Completed:     res.Completed,
		Failed:        res.Failed,
		PendingAtStop: res.PendingAtStop,
		Stopped:       res.Stopped,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := e.store.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error("failed to save run", "run_id", res.RunID, "error", err)
	}
}
