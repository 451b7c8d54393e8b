// Package ws implements the WebSocket stream of hvacdiag-server, mounted at
// /ws/stream.
//
// Hub broadcasts the snapshot (latest run per source plus active alerts) to
// every client on a fixed interval, 5s in production, and once on connect.
// Hub.Publish pushes each newly ingested run as soon as it is stored.
//
// Message format:
//
//	{"event": "snapshot", "data": { /* GET /api/v1/snapshot */ }}
//	{"event": "run",      "data": { /* GET /api/v1/runs/{id} */ }}
//
// The upgrader accepts all origins.
package ws
