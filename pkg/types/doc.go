// Package types defines shared Go types used by the diagnostic engine, the
// agent and the server. These are the canonical in-memory representations of
// sensor readings, detected issues and diagnostic reports, and double as the
// JSON wire format between agent and server.
package types
