package model

// NodeState is the processing state of a node within one crawl run.
//
// Transitions are strictly Pending -> InFlight -> Done or Failed. A node is
// never moved back to Pending within the same run.
type NodeState int

const (
	// NodeStatePending means the node sits in the frontier.
	NodeStatePending NodeState = iota

	// NodeStateInFlight means a worker is fetching the node's following list.
	NodeStateInFlight

	// NodeStateDone means the following list was fully consumed.
	NodeStateDone

	// NodeStateFailed means the fetch failed after retries. The cause is
	// recorded alongside the node and the rest of the run continues.
	NodeStateFailed
)

// String returns a human-readable representation of the state.
func (s NodeState) String() string {
	switch s {
	case NodeStatePending:
		return "pending"
	case NodeStateInFlight:
		return "in_flight"
	case NodeStateDone:
		return "done"
	case NodeStateFailed:
		return "failed"
	default:
		return unknownStr
	}
}

// IsTerminal reports whether no further transition is possible.
func (s NodeState) IsTerminal() bool {
	return s == NodeStateDone || s == NodeStateFailed
}
