package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// Run origins.
const (
	OriginUpload = "upload"
	OriginAgent  = "agent"
)

// HVAC records the diagnostic metrics of the server.
type HVAC struct {
	reg *prometheus.Registry

	runs            *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	issues          *prometheus.CounterVec
	cost            *prometheus.CounterVec
	score           *prometheus.GaugeVec
	latestCost      *prometheus.GaugeVec
	occupancyWasted *prometheus.GaugeVec
}

// NewHVAC registers the diagnostic metrics on reg.
func NewHVAC(reg *prometheus.Registry) *HVAC {
	h := &HVAC{
		reg: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hvacdiag_runs_total",
			Help: "Diagnostic runs ingested.",
		}, []string{"source", "origin"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hvacdiag_rejected_total",
			Help: "Uploads and reports rejected before analysis.",
		}, []string{"reason"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hvacdiag_issues_total",
			Help: "Issues detected across all runs.",
		}, []string{"category", "severity"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hvacdiag_cost_total",
			Help: "Sum of issue costs across all runs.",
		}, []string{"source"}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hvacdiag_efficiency_score",
			Help: "Efficiency score of the latest run per source.",
		}, []string{"source"}),
		latestCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hvacdiag_latest_total_cost",
			Help: "Total cost of the latest run per source.",
		}, []string{"source"}),
		occupancyWasted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hvacdiag_occupancy_wasted_minutes",
			Help: "Unoccupied runtime of the latest run per source.",
		}, []string{"source"}),
	}
	reg.MustRegister(h.runs, h.rejected, h.issues, h.cost,
		h.score, h.latestCost, h.occupancyWasted)
	return h
}

// Registry returns the underlying registry, for extra collectors.
func (h *HVAC) Registry() *prometheus.Registry { return h.reg }

// Handler serves the registry in the Prometheus exposition format.
func (h *HVAC) Handler() http.Handler {
	return promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{})
}

// ObserveRun records one ingested run.
func (h *HVAC) ObserveRun(run types.Run, origin string) {
	if h == nil {
		return
	}
	rep := run.Report
	h.runs.WithLabelValues(run.SourceID, origin).Inc()
	h.cost.WithLabelValues(run.SourceID).Add(float64(rep.TotalCost))
	for _, iss := range rep.Issues {
		h.issues.WithLabelValues(string(iss.Issue), string(iss.Severity)).Inc()
	}
	h.score.WithLabelValues(run.SourceID).Set(float64(rep.EfficiencyScore))
	h.latestCost.WithLabelValues(run.SourceID).Set(float64(rep.TotalCost))
	h.occupancyWasted.WithLabelValues(run.SourceID).Set(rep.OccupancyWasted)
}

// Rejected counts an input turned away, e.g. "invalid_dataset" or "too_large".
func (h *HVAC) Rejected(reason string) {
	if h == nil {
		return
	}
	h.rejected.WithLabelValues(reason).Inc()
}
