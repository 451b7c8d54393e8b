// Package api implements the HTTP REST API for hvacdiag-server.
//
// New(deps) returns an http.Handler that serves:
//
//	POST /api/v1/analyze      analyze an uploaded sensor log (CSV, JSON or multipart csv_file)
//	POST /api/v1/reports      accept a run shipped by hvacdiag-agent
//	GET  /api/v1/runs         stored runs, newest first; ?source= filters by source
//	GET  /api/v1/runs/{id}    single run with hints; 404 if unknown or expired
//	GET  /api/v1/health       overall score, grade and per-grade source counts
//	GET  /api/v1/alerts       firing and recently resolved alerts
//	GET  /api/v1/snapshot     latest run per source plus active alerts
//
// All endpoints respond with Content-Type: application/json and return 405
// for the wrong method. Errors carry a {"error": "..."} body.
//
// JSON types are defined in types.go. Hints are derived in diagnostics.go.
package api
