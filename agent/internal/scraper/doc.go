// Package scraper collects HVAC sensor readings from each configured source
// and returns them as a ScrapeResult for the compute engine.
//
// Implemented scrapers:
//   - prometheus.go samples the hvac_* gauges of a building-management
//     exporter and yields one reading per cycle, optionally narrowed to one
//     unit with a label selector.
//   - csv.go re-reads a sensor log (local path or URL) and yields every row,
//     flagged as a full replacement of the engine's window.
//
// Failures never surface as errors from Scrape; they are recorded on
// ScrapeResult.Err so the engine can count the cycle as down. Source
// credentials are applied by the client from the security package.
package scraper
