// Package store holds diagnostic runs in memory, keyed by run ID, with TTL
// eviction. Runs do not survive a restart.
package store
