// Package model defines the core data structures used throughout xspider.
//
// This package contains the following main types:
//   - Node: An account discovered while walking the "following" relation
//   - Edge: A directed "source follows target" relation between two nodes
//   - RankingRecord: One row of the ranking table produced by the ranking engine
//   - SeedRef: A validated reference to a seed account (numeric id or handle)
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The store, traversal, ranking and report packages all exchange
// these values, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for export and to map
// one-to-one onto the SQLite tables of the graph store.
package model
