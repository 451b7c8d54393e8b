package receiver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hvacdiag/hvacdiag/pkg/dataset"
	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/alerts"
	"github.com/hvacdiag/hvacdiag/server/internal/metrics"
	"github.com/hvacdiag/hvacdiag/server/internal/store"
)

// ErrInvalidRun is returned by Ingest for a structurally invalid run.
var ErrInvalidRun = errors.New("invalid run")

// DefaultSource is the source id given to uploads that name none.
const DefaultSource = "upload"

// Rejection reasons recorded in hvacdiag_rejected_total.
const (
	ReasonInvalidRun     = "invalid_run"
	ReasonInvalidDataset = "invalid_dataset"
	ReasonTooLarge       = "too_large"
)

// Publisher receives every stored run.
type Publisher interface {
	Publish(run types.Run)
}

// Publishers fans a run out to several publishers in order.
type Publishers []Publisher

// Publish implements Publisher.
func (ps Publishers) Publish(run types.Run) {
	for _, p := range ps {
		p.Publish(run)
	}
}

// Receiver validates and stores runs and fans them out to alerting,
// metrics and events. Any of alerts, metrics or events may be nil.
type Receiver struct {
	store   *store.Store
	alerts  *alerts.Engine
	metrics *metrics.HVAC
	events  Publisher
	now     func() time.Time
}

// New creates a Receiver that writes accepted runs to st.
func New(st *store.Store, al *alerts.Engine, m *metrics.HVAC, ev Publisher) *Receiver {
	return &Receiver{store: st, alerts: al, metrics: m, events: ev, now: time.Now}
}

// Ingest validates run and, when valid, records it. origin is
// metrics.OriginUpload or metrics.OriginAgent. The stored run is returned.
func (r *Receiver) Ingest(run types.Run, origin string) (types.Run, error) {
	if err := validate(run); err != nil {
		r.Reject(ReasonInvalidRun)
		return types.Run{}, err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Report.Issues == nil {
		run.Report.Issues = []types.Issue{}
	}
	run.ReceivedAt = r.now().UTC()

	r.store.Put(run)
	if r.alerts != nil {
		r.alerts.Evaluate(run)
	}
	if r.metrics != nil {
		r.metrics.ObserveRun(run, origin)
	}
	if r.events != nil {
		r.events.Publish(run)
	}

	slog.Debug("receiver: run stored",
		"run_id", run.ID,
		"source_id", run.SourceID,
		"origin", origin,
		"score", run.Report.EfficiencyScore,
		"issues", len(run.Report.Issues),
	)
	return run, nil
}

// Analyze runs the diagnostic engine over readings and ingests the result
// as an upload.
func (r *Receiver) Analyze(readings []types.Reading, source, filename string) (types.Run, error) {
	rep, err := diagnostic.Analyze(readings)
	if err != nil {
		if errors.Is(err, dataset.ErrInvalidDataset) {
			r.Reject(ReasonInvalidDataset)
		}
		return types.Run{}, fmt.Errorf("analyze: %w", err)
	}
	if source == "" {
		source = DefaultSource
	}
	return r.Ingest(types.Run{
		SourceID:   source,
		SourceType: "upload",
		Filename:   filename,
		Report:     rep,
	}, metrics.OriginUpload)
}

// AnalyzeCSV parses a CSV sensor log from rd and analyzes it. Parse
// failures wrap dataset.ErrInvalidDataset.
func (r *Receiver) AnalyzeCSV(rd io.Reader, source, filename string) (types.Run, error) {
	readings, err := dataset.ParseCSV(rd)
	if err != nil {
		r.Reject(ReasonInvalidDataset)
		return types.Run{}, err
	}
	return r.Analyze(readings, source, filename)
}

// AnalyzeJSON parses a JSON array of rows from rd and analyzes it.
func (r *Receiver) AnalyzeJSON(rd io.Reader, source, filename string) (types.Run, error) {
	readings, err := dataset.ParseJSON(rd)
	if err != nil {
		r.Reject(ReasonInvalidDataset)
		return types.Run{}, err
	}
	return r.Analyze(readings, source, filename)
}

// Reject counts an input turned away before it reached the store.
func (r *Receiver) Reject(reason string) {
	if r.metrics != nil {
		r.metrics.Rejected(reason)
	}
	slog.Debug("receiver: input rejected", "reason", reason)
}

func validate(run types.Run) error {
	rep := run.Report
	if run.SourceID == "" {
		return fmt.Errorf("%w: source_id is required", ErrInvalidRun)
	}
	if rep.EfficiencyScore < 0 || rep.EfficiencyScore > 100 {
		return fmt.Errorf("%w: efficiency_score %d outside [0, 100]", ErrInvalidRun, rep.EfficiencyScore)
	}
	if rep.RowCount < 0 || rep.OccupancyWasted < 0 {
		return fmt.Errorf("%w: negative row_count or occupancy_wasted", ErrInvalidRun)
	}
	sum := 0
	for i, iss := range rep.Issues {
		switch iss.Severity {
		case types.SeverityHigh, types.SeverityMedium, types.SeverityLow:
		default:
			return fmt.Errorf("%w: issues[%d]: unknown severity %q", ErrInvalidRun, i, iss.Severity)
		}
		if iss.Cost < 0 {
			return fmt.Errorf("%w: issues[%d]: negative cost", ErrInvalidRun, i)
		}
		sum += iss.Cost
	}
	if sum != rep.TotalCost {
		return fmt.Errorf("%w: total_cost %d does not match issue costs %d", ErrInvalidRun, rep.TotalCost, sum)
	}
	return nil
}
