package model

import "time"

// Node is an account in the follow graph.
//
// Depth is the distance from the nearest seed at the moment the node was
// first discovered. It is written once and never decreased afterwards; stores
// must keep the existing value when the same node is upserted again.
type Node struct {
	// ID is the stable upstream identifier (the account's rest id).
	ID string `json:"id"`

	// Handle is the display handle without the leading "@".
	Handle string `json:"handle"`

	// DisplayName is the free-form profile name.
	DisplayName string `json:"display_name,omitempty"`

	// FollowersCount is the public follower count reported upstream.
	FollowersCount int64 `json:"followers_count"`

	// FollowingCount is the public following count reported upstream.
	FollowingCount int64 `json:"following_count"`

	// IsSeed marks nodes supplied as traversal seeds. Once true it stays true.
	IsSeed bool `json:"is_seed"`

	// Depth is the discovery depth (0 for seeds).
	Depth int `json:"depth"`

	// FirstSeenAt is when the node was first stored.
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// HasProfile reports whether the node carries profile attributes fetched
// from upstream. Nodes created from a bare seed id have no profile yet.
func (n Node) HasProfile() bool {
	return n.Handle != "" || n.FollowersCount > 0 || n.FollowingCount > 0
}

// Edge is a directed follow relation: SourceID follows TargetID.
// The (SourceID, TargetID) pair is the natural key.
type Edge struct {
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Key returns the natural key of the edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.SourceID, Target: e.TargetID}
}

// EdgeKey identifies an edge independent of its discovery time.
type EdgeKey struct {
	Source string
	Target string
}
