// Package main provides the entry point for the xspider CLI.
//
// xspider crawls the "following" graph outward from a set of seed
// accounts, stores it in SQLite, and ranks the accounts it found by
// authority within that graph relative to their public follower counts.
//
// Usage:
//
//	xspider crawl @seed1 @seed2
//	xspider rank --top 50
//	xspider export rankings --format csv -o rankings.csv
//
// See --help for all available options.
package main

// main is the entry point for xspider.
func main() {
	Execute()
}
