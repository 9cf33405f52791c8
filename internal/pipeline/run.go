package pipeline

import (
	"time"

	"github.com/nao1215/xspider/internal/model"
	"github.com/nao1215/xspider/internal/ranking"
	"github.com/nao1215/xspider/internal/traversal"
)

// Run is the state shared by the steps of one pipeline execution.
type Run struct {
	// SeedRefs are the parsed seed arguments.
	SeedRefs []model.SeedRef

	// Seeds are the resolved seed nodes handed to the crawler.
	Seeds []model.Node

	// Unresolved lists seed handles that could not be looked up.
	Unresolved []SeedError

	// Crawl is the traversal result. It is set even when the crawl
	// stopped early.
	Crawl *traversal.Result

	// Ranking summarizes the ranking step.
	Ranking *ranking.Summary

	// Exported lists the files written by the export step.
	Exported []string

	// StepsPerformed lists the names of the steps that ran.
	StepsPerformed []string

	// StepDurations maps step name to its wall time.
	StepDurations map[string]time.Duration

	// Errors maps step name to the error it returned.
	Errors map[string]error

	// Cancelled is set when the context ended between steps.
	Cancelled bool
}

// SeedError is a seed that could not be resolved.
type SeedError struct {
	Ref model.SeedRef
	Err error
}

// NewRun creates a Run for the given seed references.
func NewRun(refs []model.SeedRef) *Run {
	return &Run{
		SeedRefs:      refs,
		StepDurations: make(map[string]time.Duration),
		Errors:        make(map[string]error),
	}
}

func (r *Run) recordError(step string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[step] = err
}

func (r *Run) recordDuration(step string, d time.Duration) {
	if r.StepDurations == nil {
		r.StepDurations = make(map[string]time.Duration)
	}
	r.StepDurations[step] += d
}
