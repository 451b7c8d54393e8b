package api

import (
	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OverallScore float64 `json:"overall_score"`
	Grade        string  `json:"grade"`
	SourceCount  int     `json:"source_count"`
	RunCount     int     `json:"run_count"`
	GoodCount    int     `json:"good_count"`
	FairCount    int     `json:"fair_count"`
	PoorCount    int     `json:"poor_count"`
	AlertCount   int     `json:"alert_count"`
}

// RunResponse is one run in POST /api/v1/analyze, GET /api/v1/runs/{id}
// and the snapshot.
type RunResponse struct {
	ID          string             `json:"id"`
	SourceID    string             `json:"source_id"`
	SourceType  string             `json:"source_type,omitempty"`
	Filename    string             `json:"filename,omitempty"`
	ReceivedAt  string             `json:"received_at"` // RFC3339
	Report      types.Report       `json:"report"`
	Summary     diagnostic.Summary `json:"summary"`
	Diagnostics []DiagnosticHint   `json:"diagnostics"`
}

// RunSummary is one entry in GET /api/v1/runs.
type RunSummary struct {
	ID              string  `json:"id"`
	SourceID        string  `json:"source_id"`
	SourceType      string  `json:"source_type,omitempty"`
	Filename        string  `json:"filename,omitempty"`
	ReceivedAt      string  `json:"received_at"` // RFC3339
	EfficiencyScore int     `json:"efficiency_score"`
	Grade           string  `json:"grade"`
	TotalCost       int     `json:"total_cost"`
	OccupancyWasted float64 `json:"occupancy_wasted"`
	IssueCount      int     `json:"issue_count"`
	RowCount        int     `json:"row_count"`
}

// ReportAccepted is the payload for POST /api/v1/reports.
type ReportAccepted struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Sources     []RunResponse   `json:"sources"`
	Alerts      []*alerts.Alert `json:"alerts"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
