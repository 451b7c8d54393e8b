package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/hvacdiag/hvacdiag/pkg/dataset"
	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/alerts"
	"github.com/hvacdiag/hvacdiag/server/internal/config"
	"github.com/hvacdiag/hvacdiag/server/internal/metrics"
	"github.com/hvacdiag/hvacdiag/server/internal/receiver"
	"github.com/hvacdiag/hvacdiag/server/internal/store"
)

// uploadField is the multipart form field carrying an uploaded CSV.
const uploadField = "csv_file"

// Deps are the collaborators of the API. Alerts may be nil.
type Deps struct {
	Store          *store.Store
	Receiver       *receiver.Receiver
	Alerts         *alerts.Engine
	MaxUploadBytes int64
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store     *store.Store
	receiver  *receiver.Receiver
	alerts    *alerts.Engine
	maxUpload int64
	mux       *http.ServeMux
}

// New creates a Handler wired to d and registers all routes.
func New(d Deps) http.Handler {
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = config.DefaultMaxUploadBytes
	}
	h := &Handler{
		store:     d.Store,
		receiver:  d.Receiver,
		alerts:    d.Alerts,
		maxUpload: maxUpload,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/v1/analyze", h.analyze)
	h.mux.HandleFunc("/api/v1/reports", h.reports)
	h.mux.HandleFunc("/api/v1/runs", h.listRuns)
	h.mux.HandleFunc("/api/v1/runs/", h.getRun) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// analyze handles POST /api/v1/analyze: runs the engine over an uploaded
// sensor log and stores the result.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	source, filename := q.Get("source"), q.Get("filename")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		run types.Run
		err error
	)
	switch mediaType {
	case "multipart/form-data":
		r.Body = io.NopCloser(bytes.NewReader(body))
		file, hdr, ferr := r.FormFile(uploadField)
		if ferr != nil {
			h.receiver.Reject(receiver.ReasonInvalidDataset)
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("multipart field %q is required", uploadField))
			return
		}
		defer file.Close()
		if filename == "" {
			filename = hdr.Filename
		}
		run, err = h.receiver.AnalyzeCSV(file, source, filename)
	case "application/json":
		run, err = h.receiver.AnalyzeJSON(bytes.NewReader(body), source, filename)
	case "", "text/csv", "text/plain", "application/csv":
		run, err = h.receiver.AnalyzeCSV(bytes.NewReader(body), source, filename)
	default:
		jsonErr(w, http.StatusUnsupportedMediaType, "unsupported content type "+mediaType)
		return
	}

	switch {
	case errors.Is(err, dataset.ErrInvalidDataset):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		slog.Error("api: analyze failed", "source", source, "err", err)
		jsonErr(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	jsonResp(w, http.StatusOK, NewRunResponse(run))
}

// reports handles POST /api/v1/reports: a run shipped by an agent.
func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var run types.Run
	if err := json.Unmarshal(body, &run); err != nil {
		h.receiver.Reject(receiver.ReasonInvalidRun)
		jsonErr(w, http.StatusBadRequest, "decode run: "+err.Error())
		return
	}

	stored, err := h.receiver.Ingest(run, metrics.OriginAgent)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, ReportAccepted{OK: true, ID: stored.ID})
}

// listRuns handles GET /api/v1/runs: stored runs, newest first.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List(r.URL.Query().Get("source"))
	out := make([]RunSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, toRunSummary(e.Run))
	}
	jsonResp(w, http.StatusOK, out)
}

// getRun handles GET /api/v1/runs/{id}.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		h.listRuns(w, r)
		return
	}

	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	jsonResp(w, http.StatusOK, NewRunResponse(e.Run))
}

// health handles GET /api/v1/health: the mean score over the latest run of
// every source.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	latest := h.store.Latest()
	resp := HealthResponse{
		SourceCount: len(latest),
		RunCount:    h.store.Count(),
	}
	if h.alerts != nil {
		resp.AlertCount = h.alerts.FiringCount()
	}
	if len(latest) == 0 {
		resp.Grade = "unknown"
		jsonResp(w, http.StatusOK, resp)
		return
	}

	var total float64
	for _, e := range latest {
		score := e.Run.Report.EfficiencyScore
		total += float64(score)
		switch diagnostic.Grade(score) {
		case diagnostic.GradeGood:
			resp.GoodCount++
		case diagnostic.GradeFair:
			resp.FairCount++
		default:
			resp.PoorCount++
		}
	}
	resp.OverallScore = total / float64(len(latest))
	resp.Grade = diagnostic.Grade(int(math.Round(resp.OverallScore)))
	jsonResp(w, http.StatusOK, resp)
}

// listAlerts handles GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, activeAlerts(h.alerts))
}

// snapshot handles GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.alerts))
}

// BuildSnapshot assembles the latest run per source and the active alerts.
// It is shared with the WebSocket hub.
func BuildSnapshot(st *store.Store, al *alerts.Engine) SnapshotResponse {
	latest := st.Latest()
	sources := make([]RunResponse, 0, len(latest))
	for _, e := range latest {
		sources = append(sources, NewRunResponse(e.Run))
	}
	return SnapshotResponse{
		Sources:     sources,
		Alerts:      activeAlerts(al),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

// readBody reads the request body up to the upload limit. On failure it has
// already written the response.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.receiver.Reject(receiver.ReasonTooLarge)
			jsonErr(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	return body, true
}

func activeAlerts(al *alerts.Engine) []*alerts.Alert {
	if al == nil {
		return []*alerts.Alert{}
	}
	return al.Active()
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// NewRunResponse maps a run to its JSON representation with summary and hints.
func NewRunResponse(run types.Run) RunResponse {
	rep := run.Report
	if rep.Issues == nil {
		rep.Issues = []types.Issue{}
	}
	return RunResponse{
		ID:          run.ID,
		SourceID:    run.SourceID,
		SourceType:  run.SourceType,
		Filename:    run.Filename,
		ReceivedAt:  run.ReceivedAt.UTC().Format(time.RFC3339),
		Report:      rep,
		Summary:     diagnostic.Summarize(rep),
		Diagnostics: computeDiagnostics(run),
	}
}

func toRunSummary(run types.Run) RunSummary {
	rep := run.Report
	return RunSummary{
		ID:              run.ID,
		SourceID:        run.SourceID,
		SourceType:      run.SourceType,
		Filename:        run.Filename,
		ReceivedAt:      run.ReceivedAt.UTC().Format(time.RFC3339),
		EfficiencyScore: rep.EfficiencyScore,
		Grade:           diagnostic.Grade(rep.EfficiencyScore),
		TotalCost:       rep.TotalCost,
		OccupancyWasted: rep.OccupancyWasted,
		IssueCount:      len(rep.Issues),
		RowCount:        rep.RowCount,
	}
}
