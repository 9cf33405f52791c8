// Package ranking scores the crawled follow graph.
//
// Authority is PageRank over "follows" edges: being followed by accounts
// that are themselves followed a lot raises a node's score. Nodes that
// follow nobody (dangling nodes) spread their score uniformly over the
// whole graph each iteration, so total mass stays 1.
//
// The hidden score divides authority by ln(followers + 2). It favors
// accounts the graph values more than their public follower count would
// suggest. Categorize turns follower counts and seed-follower counts into
// one of four labels using configurable ceilings.
//
// Ranking runs only on a quiescent graph snapshot. Engine.Run loads the
// snapshot from a graphstore, scores it, and replaces the ranking table.
package ranking
