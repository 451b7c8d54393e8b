// Package metrics defines the Prometheus collectors recorded for every
// ingested run and serves them on GET /metrics through promhttp.
package metrics
