package ranking

import (
	"errors"
	"math"

	"github.com/nao1215/xspider/internal/graphstore"
)

// Authority defaults.
const (
	// DefaultDamping is the probability of following an edge rather than
	// jumping to a random node.
	DefaultDamping = 0.85

	// DefaultMaxIterations caps power iteration.
	DefaultMaxIterations = 100

	// DefaultTolerance is the L1 distance between iterations below which
	// the scores are considered converged.
	DefaultTolerance = 1e-6
)

var (
	// ErrEmptyGraph is returned when there is nothing to rank.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrInvalidDamping is returned when damping is outside (0, 1).
	ErrInvalidDamping = errors.New("damping must be in (0, 1)")

	// ErrInvalidMaxIterations is returned when the iteration cap is not positive.
	ErrInvalidMaxIterations = errors.New("max iterations must be positive")

	// ErrInvalidTolerance is returned when the tolerance is not positive.
	ErrInvalidTolerance = errors.New("tolerance must be positive")
)

// AuthorityOptions configures ComputeAuthority.
type AuthorityOptions struct {
	// Damping is the probability of following an edge. Must be in (0, 1).
	Damping float64

	// MaxIterations caps the power iteration. Must be > 0.
	MaxIterations int

	// Tolerance is the L1 convergence threshold. Must be > 0.
	Tolerance float64
}

// DefaultAuthorityOptions returns the standard PageRank parameters.
func DefaultAuthorityOptions() AuthorityOptions {
	return AuthorityOptions{
		Damping:       DefaultDamping,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

// Validate checks the options.
func (o AuthorityOptions) Validate() error {
	if o.Damping <= 0 || o.Damping >= 1 || math.IsNaN(o.Damping) {
		return ErrInvalidDamping
	}
	if o.MaxIterations <= 0 {
		return ErrInvalidMaxIterations
	}
	if o.Tolerance <= 0 || math.IsNaN(o.Tolerance) {
		return ErrInvalidTolerance
	}
	return nil
}

// AuthorityResult is the output of ComputeAuthority.
type AuthorityResult struct {
	// Scores maps node id to authority. Scores are non-negative and sum
	// to 1 within floating point error.
	Scores map[string]float64

	// Iterations is the number of iterations performed.
	Iterations int

	// Converged reports whether Delta fell below the tolerance before
	// MaxIterations. When false, Scores is the last estimate.
	Converged bool

	// Delta is the L1 distance between the last two iterations.
	Delta float64
}

// ComputeAuthority runs PageRank by power iteration:
//
//	score'(u) = (1-d)/N + d * (sum over v->u of score(v)/out(v) + dangling/N)
//
// where dangling is the total score of nodes without outgoing edges.
func ComputeAuthority(g *graphstore.Graph, opts AuthorityOptions) (*AuthorityResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if g == nil || g.Len() == 0 {
		return nil, ErrEmptyGraph
	}

	n := g.Len()
	nf := float64(n)
	d := opts.Damping

	// Index nodes once so the inner loop works on slices.
	index := make(map[string]int, n)
	for i, id := range g.IDs {
		index[id] = i
	}
	outDegree := make([]int, n)
	incoming := make([][]int, n)
	var dangling []int
	for i, id := range g.IDs {
		outDegree[i] = g.OutDegree(id)
		if outDegree[i] == 0 {
			dangling = append(dangling, i)
		}
		for _, src := range g.In[id] {
			incoming[i] = append(incoming[i], index[src])
		}
	}

	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / nf
	}

	result := &AuthorityResult{}
	for iter := range opts.MaxIterations {
		danglingMass := 0.0
		for _, i := range dangling {
			danglingMass += scores[i]
		}
		base := (1-d)/nf + d*danglingMass/nf

		delta := 0.0
		for i := range n {
			sum := 0.0
			for _, j := range incoming[i] {
				sum += scores[j] / float64(outDegree[j])
			}
			next[i] = base + d*sum
			delta += math.Abs(next[i] - scores[i])
		}

		scores, next = next, scores
		result.Iterations = iter + 1
		result.Delta = delta
		if delta < opts.Tolerance {
			result.Converged = true
			break
		}
	}

	result.Scores = make(map[string]float64, n)
	for i, id := range g.IDs {
		result.Scores[id] = scores[i]
	}
	return result, nil
}
