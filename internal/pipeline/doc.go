// Package pipeline runs the crawl, rank and export stages in sequence.
//
// `xspider run` builds a Pipeline of four steps: resolve seed handles to
// ids, crawl the follow graph, rank it, and export the rankings.
// `xspider crawl` uses the first two only. Each step receives the shared
// Run and fills in its part, so a caller can inspect what every stage did
// after Execute returns, including after a failure.
//
// Design decision: A failed step stops the pipeline by default. The stages
// are not independent the way separate checks would be; each one reads what
// the previous one wrote to the store.
package pipeline
