// Package report renders rankings and the crawled graph for people and tools.
//
// This package contains writers for different output formats:
//   - SimpleWriter: aligned text table for terminal display
//   - CSVWriter: spreadsheet-friendly rows with a header line
//   - JSONWriter: one JSON array, optionally pretty-printed
//   - JSONLWriter: one JSON object per line for streaming tools
//   - MarkdownWriter: a shareable report with a category pie chart
//
// Design decision: We separate rendering from the data structures (which
// live in the model package) so new output formats never touch the crawler
// or the store.
//
// Every format implements Writer for rankings. All formats except
// Markdown also implement GraphWriter for node and edge exports.
package report
