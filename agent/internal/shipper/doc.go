// Package shipper delivers diagnostic runs to hvacdiag-server as JSON over
// HTTP (POST /api/v1/reports).
//
// Shipper.Ship() is non-blocking: results are converted to types.Run and
// placed in an in-memory channel (default capacity 100). When the buffer is
// full the oldest run is evicted so the latest diagnosis is always kept.
//
// Shipper.Run() flushes the buffer every ship_interval. Network errors and
// 5xx responses are retried with truncated exponential backoff (1s→60s,
// ±25% jitter); 4xx responses discard the run.
package shipper
