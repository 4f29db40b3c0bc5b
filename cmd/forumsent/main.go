// Package main provides the entry point for the forumsent CLI.
//
// forumsent crawls a ForumFree board into a SQLite document store, keeps it
// up to date on a schedule, annotates posts with named entities and serves
// the dataset over HTTP.
//
// Usage:
//
//	forumsent crawl --start 2023-01-01 --end 2023-12-31
//	forumsent watch --schedule @hourly
//	forumsent serve
//
// See --help for all available options.
package main

func main() {
	Execute()
}
