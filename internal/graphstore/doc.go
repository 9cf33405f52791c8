// Package graphstore persists the follow graph, crawl runs and rankings.
//
// Two implementations share the Store interface: MemoryStore for tests and
// one-shot runs, and SQLiteStore for anything that should survive the
// process. Both apply the same upsert rules:
//
//   - A node is inserted if absent. On conflict its discovery depth and
//     first-seen time are kept, its profile attributes are refreshed when
//     the incoming record carries them, and is_seed only ever turns on.
//   - An edge is keyed by (source, target). Re-discovery is a no-op.
//   - Rankings are replaced wholesale inside one transaction.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the graph
// for a few thousand seeds fits comfortably in a single file, the pure-Go
// driver keeps the binary cgo-free, and WAL mode lets `xspider export` read
// while a crawl is still writing.
package graphstore
