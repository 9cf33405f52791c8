package graphstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/xspider/internal/model"
)

// MemoryStore keeps everything in maps. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]model.Node
	edges    map[model.EdgeKey]model.Edge
	rankings []model.RankingRecord
	failures []FailureRecord
	runs     map[string]RunRecord
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]model.Node),
		edges: make(map[model.EdgeKey]model.Edge),
		runs:  make(map[string]RunRecord),
		now:   time.Now,
	}
}

// UpsertNode implements Store.
func (s *MemoryStore) UpsertNode(_ context.Context, n model.Node) error {
	if err := validateNode(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[n.ID]
	if !ok {
		if n.FirstSeenAt.IsZero() {
			n.FirstSeenAt = s.now().UTC()
		}
		s.nodes[n.ID] = n
		return nil
	}
	s.nodes[n.ID] = mergeNode(existing, n)
	return nil
}

// UpsertEdge implements Store.
func (s *MemoryStore) UpsertEdge(_ context.Context, e model.Edge) error {
	if err := validateEdge(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[e.Key()]; ok {
		return nil
	}
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = s.now().UTC()
	}
	s.edges[e.Key()] = e
	return nil
}

// Node implements Store.
func (s *MemoryStore) Node(_ context.Context, id string) (model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return model.Node{}, ErrNodeNotFound
	}
	return n, nil
}

// Nodes implements Store.
func (s *MemoryStore) Nodes(_ context.Context) ([]model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b model.Node) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Edges implements Store.
func (s *MemoryStore) Edges(_ context.Context) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	slices.SortFunc(out, compareEdges)
	return out, nil
}

func compareEdges(a, b model.Edge) int {
	if c := strings.Compare(a.SourceID, b.SourceID); c != 0 {
		return c
	}
	return strings.Compare(a.TargetID, b.TargetID)
}

// Graph implements Store.
func (s *MemoryStore) Graph(ctx context.Context) (*Graph, error) {
	nodes, _ := s.Nodes(ctx)
	edges, _ := s.Edges(ctx)
	return NewGraph(nodes, edges), nil
}

// ReplaceRankings implements Store.
func (s *MemoryStore) ReplaceRankings(_ context.Context, records []model.RankingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rankings = slices.Clone(records)
	slices.SortStableFunc(s.rankings, func(a, b model.RankingRecord) int { return a.Rank - b.Rank })
	return nil
}

// Rankings implements Store.
func (s *MemoryStore) Rankings(_ context.Context) ([]model.RankingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rankings), nil
}

// RecordFailure implements Store.
func (s *MemoryStore) RecordFailure(_ context.Context, f FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

// Failures implements Store.
func (s *MemoryStore) Failures(_ context.Context, runID string) ([]FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FailureRecord
	for _, f := range s.failures {
		if f.RunID == runID {
			out = append(out, f)
		}
	}
	return out, nil
}

// SaveRun implements Store.
func (s *MemoryStore) SaveRun(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
	return nil
}

// Runs implements Store.
func (s *MemoryStore) Runs(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b RunRecord) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

// Counts implements Store.
func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Nodes:    len(s.nodes),
		Edges:    len(s.edges),
		Rankings: len(s.rankings),
		Runs:     len(s.runs),
	}, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
