// Package traversal runs the breadth-first crawl over the follow graph.
//
// A fixed pool of workers draws (node, depth) entries from a shared
// Frontier. For every node a worker pulls the following list through a
// Fetcher, upserts each target node and the follow edge into the
// graphstore, and enqueues the target one level deeper while the depth
// bound allows it.
//
// Each node moves through Pending, InFlight and then Done or Failed. A
// failed node records its cause and the run continues; only credential
// exhaustion (every credential banned) aborts the run.
//
// Design decision: The frontier hands out a depth d entry only when no
// entry shallower than d is still in flight. With several workers a plain
// FIFO could let a deep branch finish before a sibling at a shallower
// level, and the first discovery of a node would then carry a depth that
// is not its shortest seed distance. The barrier costs a little
// parallelism at level boundaries and keeps stored depths exact.
package traversal
