package graphstore

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/xspider/internal/model"
)

var (
	// ErrNodeNotFound is returned by Node when the id is unknown.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNode is returned when a node has no id.
	ErrInvalidNode = errors.New("node id must not be empty")

	// ErrInvalidEdge is returned when an edge endpoint is empty or the
	// edge is a self-loop.
	ErrInvalidEdge = errors.New("edge endpoints must be non-empty and distinct")

	// ErrDatabaseNotFound is returned by Open when the database is missing
	// and creation was not requested.
	ErrDatabaseNotFound = errors.New("database not found")
)

// Store is the persistence boundary for crawled data.
type Store interface {
	// UpsertNode inserts n or merges it into the existing record.
	UpsertNode(ctx context.Context, n model.Node) error

	// UpsertEdge inserts e unless the (source, target) pair exists.
	UpsertEdge(ctx context.Context, e model.Edge) error

	// Node returns the node with the given id or ErrNodeNotFound.
	Node(ctx context.Context, id string) (model.Node, error)

	// Nodes returns every node ordered by id.
	Nodes(ctx context.Context) ([]model.Node, error)

	// Edges returns every edge ordered by (source, target).
	Edges(ctx context.Context) ([]model.Edge, error)

	// Graph returns an immutable snapshot for ranking.
	Graph(ctx context.Context) (*Graph, error)

	// ReplaceRankings atomically swaps the ranking table for records.
	ReplaceRankings(ctx context.Context, records []model.RankingRecord) error

	// Rankings returns the ranking table ordered by rank.
	Rankings(ctx context.Context) ([]model.RankingRecord, error)

	// RecordFailure appends a node failure for a run.
	RecordFailure(ctx context.Context, f FailureRecord) error

	// Failures returns the failures recorded for runID.
	Failures(ctx context.Context, runID string) ([]FailureRecord, error)

	// SaveRun inserts or updates a crawl run summary.
	SaveRun(ctx context.Context, r RunRecord) error

	// Runs returns all runs, most recent first.
	Runs(ctx context.Context) ([]RunRecord, error)

	// Counts returns table sizes for status output.
	Counts(ctx context.Context) (Counts, error)

	// Close releases resources.
	Close() error
}

// RunRecord summarizes one crawl run.
type RunRecord struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Seeds         []string  `json:"seeds"`
	MaxDepth      int       `json:"max_depth"`
	Completed     int       `json:"completed"`
	Failed        int       `json:"failed"`
	PendingAtStop int       `json:"pending_at_stop"`
	Stopped       bool      `json:"stopped"`
	Error         string    `json:"error,omitempty"`
}

// FailureRecord is one node that could not be fetched.
type FailureRecord struct {
	RunID    string    `json:"run_id"`
	NodeID   string    `json:"node_id"`
	Cause    string    `json:"cause"`
	FailedAt time.Time `json:"failed_at"`
}

// Counts holds table sizes.
type Counts struct {
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
	Rankings int `json:"rankings"`
	Runs     int `json:"runs"`
}

// mergeNode applies the upsert rules to an existing record.
func mergeNode(existing, incoming model.Node) model.Node {
	merged := existing
	if incoming.HasProfile() {
		merged.Handle = incoming.Handle
		merged.DisplayName = incoming.DisplayName
		merged.FollowersCount = incoming.FollowersCount
		merged.FollowingCount = incoming.FollowingCount
	}
	merged.IsSeed = existing.IsSeed || incoming.IsSeed
	return merged
}

func validateNode(n model.Node) error {
	if n.ID == "" {
		return ErrInvalidNode
	}
	return nil
}

func validateEdge(e model.Edge) error {
	if e.SourceID == "" || e.TargetID == "" || e.SourceID == e.TargetID {
		return ErrInvalidEdge
	}
	return nil
}
