package shipper

import (
	"github.com/google/uuid"

	"github.com/hvacdiag/hvacdiag/agent/internal/compute"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// toRun converts a compute.Result into the run document the server ingests.
// The run ID is assigned here, once, so a retried delivery replaces the run
// the server may already hold instead of storing a duplicate.
func toRun(r *compute.Result) types.Run {
	rep := r.Report
	if rep.Issues == nil {
		rep.Issues = []types.Issue{}
	}
	return types.Run{
		ID:         uuid.NewString(),
		SourceID:   r.SourceID,
		SourceType: r.SourceType,
		ReceivedAt: r.Timestamp.UTC(),
		Report:     rep,
	}
}
