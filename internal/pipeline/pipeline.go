package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Step is one stage of a pipeline run.
//
// Design decision: Steps are values with a Name rather than bare functions.
// Each one holds its own engine or store and output settings, and the name
// labels logs, Run.Errors and the step duration metric.
type Step interface {
	// Do performs the stage on run. An error stops the pipeline unless it
	// was built WithContinueOnError. Problems that should not stop it, such
	// as a single unresolved seed, belong in run instead.
	Do(ctx context.Context, run *Run) error

	// Name is a short snake_case label.
	Name() string
}

// Pipeline executes steps in the order they were added.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
	now             func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing after a failed step. Every error is
// recorded in Run.Errors and the last one is returned.
//
// Off by default: each stage consumes what the previous one stored, and
// ranking after a failed crawl of an empty store only yields ErrEmptyGraph.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithClock replaces time.Now for step timing.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New returns an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends one step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step against run.
//
// ctx is only checked between steps; a step that is already running
// reacts to cancellation itself. Stopping a crawl with Engine.Stop leaves
// ctx alone, so the rank and export steps still see the partial graph.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	var lastErr error
	for _, step := range p.steps {
		name := step.Name()
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "next_step", name, "reason", err)
			run.Cancelled = true
			return err
		}

		p.logger.Info("executing step", "step", name)
		start := p.now()
		err := step.Do(ctx, run)
		elapsed := p.now().Sub(start)
		run.recordDuration(name, elapsed)
		stepDuration.WithLabelValues(name, stepResult(err)).Observe(elapsed.Seconds())
		run.StepsPerformed = append(run.StepsPerformed, name)

		if err == nil {
			p.logger.Debug("step completed", "step", name, "elapsed", elapsed)
			continue
		}

		p.logger.Error("step failed", "step", name, "elapsed", elapsed, "error", err)
		run.recordError(name, err)
		lastErr = err
		if !p.continueOnError {
			return err
		}
	}
	return lastErr
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

func stepResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
