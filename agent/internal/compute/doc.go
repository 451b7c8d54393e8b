// Package compute turns scraper output into diagnostic reports.
//
// The Engine keeps a rolling window of the newest readings for each source
// (csv sources replace the whole window each cycle) and runs
// diagnostic.Analyze over it after every successful scrape. It also tracks
// the outcome of the last 20 scrapes per source as an uptime percentage.
//
// Engine.Process accepts an injectable time.Time so tests are deterministic.
package compute
