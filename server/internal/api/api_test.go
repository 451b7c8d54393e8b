package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/alerts"
	"github.com/hvacdiag/hvacdiag/server/internal/api"
	"github.com/hvacdiag/hvacdiag/server/internal/config"
	"github.com/hvacdiag/hvacdiag/server/internal/metrics"
	"github.com/hvacdiag/hvacdiag/server/internal/receiver"
	"github.com/hvacdiag/hvacdiag/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

const sampleCSV = "time,temp,target_temp,runtime,occupancy\n" +
	"08:00,25,22,60,1\n" +
	"09:00,22,22,150,0\n"

type fixture struct {
	h     http.Handler
	store *store.Store
	al    *alerts.Engine
}

func newFixture(t *testing.T, rules ...config.AlertRule) *fixture {
	t.Helper()
	st := store.New(5 * time.Minute)
	al := alerts.New(config.AlertsConfig{Rules: rules})
	rec := receiver.New(st, al, metrics.NewHVAC(prometheus.NewRegistry()), nil)
	h := api.New(api.Deps{Store: st, Receiver: rec, Alerts: al, MaxUploadBytes: 1024})
	return &fixture{h: h, store: st, al: al}
}

func run(id, source string, score, cost int, issues ...types.Issue) types.Run {
	if issues == nil {
		issues = []types.Issue{}
	}
	return types.Run{
		ID:         id,
		SourceID:   source,
		SourceType: "prometheus",
		ReceivedAt: time.Now(),
		Report: types.Report{
			Issues:          issues,
			EfficiencyScore: score,
			TotalCost:       cost,
			RowCount:        4,
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- POST /api/v1/analyze ---------------------------------------------------

func TestAnalyze_CSVBody(t *testing.T) {
	f := newFixture(t)
	rr := post(t, f.h, "/api/v1/analyze?source=ahu-1&filename=march.csv", "text/csv", []byte(sampleCSV))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.RunResponse
	decode(t, rr, &resp)

	if resp.ID == "" || resp.SourceID != "ahu-1" || resp.Filename != "march.csv" {
		t.Errorf("run identity: %+v", resp)
	}
	if len(resp.Report.Issues) != 3 {
		t.Fatalf("issues: got %d, want 3", len(resp.Report.Issues))
	}
	if resp.Report.Issues[0].Severity != types.SeverityHigh {
		t.Errorf("first issue severity: got %s, want High", resp.Report.Issues[0].Severity)
	}
	if resp.Report.TotalCost != 120 {
		t.Errorf("total_cost: got %d, want 120", resp.Report.TotalCost)
	}
	if len(resp.Diagnostics) == 0 {
		t.Error("diagnostics should not be empty")
	}
	if f.store.Count() != 1 {
		t.Errorf("stored runs: got %d, want 1", f.store.Count())
	}
}

func TestAnalyze_JSONBody(t *testing.T) {
	f := newFixture(t)
	body := `[{"time":"08:00","temp":21,"target_temp":21,"runtime":30,"occupancy":1}]`
	rr := post(t, f.h, "/api/v1/analyze", "application/json", []byte(body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.RunResponse
	decode(t, rr, &resp)
	if resp.Report.EfficiencyScore != 100 || len(resp.Report.Issues) != 0 {
		t.Errorf("report: %+v", resp.Report)
	}
	if resp.SourceID != receiver.DefaultSource {
		t.Errorf("source_id: got %q, want %q", resp.SourceID, receiver.DefaultSource)
	}
}

func TestAnalyze_Multipart(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("csv_file", "upload.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte(sampleCSV)) //nolint:errcheck
	mw.Close()

	rr := post(t, f.h, "/api/v1/analyze", mw.FormDataContentType(), buf.Bytes())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.RunResponse
	decode(t, rr, &resp)
	if resp.Filename != "upload.csv" {
		t.Errorf("filename: got %q, want upload.csv", resp.Filename)
	}
}

func TestAnalyze_MultipartMissingField(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "x") //nolint:errcheck
	mw.Close()

	rr := post(t, f.h, "/api/v1/analyze", mw.FormDataContentType(), buf.Bytes())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"non-numeric cell", "text/csv", "time,temp\n08:00,hot\n", http.StatusUnprocessableEntity},
		{"infinite runtime", "text/csv", "time,runtime,occupancy\n08:00,inf,0\n", http.StatusUnprocessableEntity},
		{"waste overflows", "text/csv", "time,runtime,occupancy\n08:00,1e308,0\n09:00,1e308,0\n", http.StatusUnprocessableEntity},
		{"empty body", "text/csv", "", http.StatusUnprocessableEntity},
		{"json object", "application/json", `{"temp":1}`, http.StatusUnprocessableEntity},
		{"oversize", "text/csv", "time,temp\n" + strings.Repeat("08:00,21\n", 200), http.StatusRequestEntityTooLarge},
		{"unsupported type", "application/xml", "<x/>", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := post(t, f.h, "/api/v1/analyze", tt.contentType, []byte(tt.body))
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, tt.want, rr.Body.String())
			}
			var resp map[string]string
			decode(t, rr, &resp)
			if resp["error"] == "" {
				t.Error("error body should carry a message")
			}
			if f.store.Count() != 0 {
				t.Error("nothing should be stored")
			}
		})
	}
}

func TestAnalyze_NonFiniteUploadLeavesStoreReadable(t *testing.T) {
	f := newFixture(t)
	if rr := post(t, f.h, "/api/v1/analyze?source=a", "text/csv", []byte(sampleCSV)); rr.Code != http.StatusOK {
		t.Fatalf("good upload: got %d", rr.Code)
	}
	for _, body := range []string{
		"time,runtime,occupancy\n08:00,inf,0\n",
		"time,runtime,occupancy\n08:00,1e308,0\n09:00,1e308,0\n",
	} {
		if rr := post(t, f.h, "/api/v1/analyze?source=b", "text/csv", []byte(body)); rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("non-finite upload: got %d, want 422", rr.Code)
		}
	}

	var runs []api.RunSummary
	decode(t, get(t, f.h, "/api/v1/runs"), &runs)
	if len(runs) != 1 || runs[0].SourceID != "a" {
		t.Errorf("runs = %+v, want only source a", runs)
	}
	var snap api.SnapshotResponse
	decode(t, get(t, f.h, "/api/v1/snapshot"), &snap)
	if len(snap.Sources) != 1 {
		t.Errorf("snapshot sources = %d, want 1", len(snap.Sources))
	}
}

func TestAnalyze_NAMarkersSuppressRulesOnly(t *testing.T) {
	f := newFixture(t)
	rr := post(t, f.h, "/api/v1/analyze", "text/csv", []byte("time,temp,target_temp,runtime\n08:00,NA,20,150\n"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.RunResponse
	decode(t, rr, &resp)
	if len(resp.Report.Issues) != 1 || resp.Report.Issues[0].Issue != types.CategoryExcessiveRuntime {
		t.Errorf("issues = %+v, want one excessive runtime", resp.Report.Issues)
	}
}

func TestAnalyze_HeaderOnly(t *testing.T) {
	f := newFixture(t)
	rr := post(t, f.h, "/api/v1/analyze", "text/csv", []byte("time,temp,target_temp,runtime,occupancy\n"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RunResponse
	decode(t, rr, &resp)
	if resp.Report.RowCount != 0 || resp.Report.EfficiencyScore != 100 {
		t.Errorf("report: %+v", resp.Report)
	}
	if len(resp.Diagnostics) != 1 || resp.Diagnostics[0].Key != "empty_dataset" {
		t.Errorf("diagnostics: %+v", resp.Diagnostics)
	}
}

// --- POST /api/v1/reports ---------------------------------------------------

func TestReports_Accepts(t *testing.T) {
	f := newFixture(t, config.AlertRule{Name: "poor", Condition: "grade == poor", Severity: "critical"})
	body, _ := json.Marshal(run("", "ahu-2", 40, 60,
		types.Issue{Issue: types.CategoryExcessiveRuntime, Severity: types.SeverityHigh, Cost: 60}))

	rr := post(t, f.h, "/api/v1/reports", "application/json", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var resp api.ReportAccepted
	decode(t, rr, &resp)
	if !resp.OK || resp.ID == "" {
		t.Errorf("response: %+v", resp)
	}
	if f.al.FiringCount() != 1 {
		t.Errorf("firing alerts: got %d, want 1", f.al.FiringCount())
	}
}

func TestReports_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"source_id":`},
		{"missing source", `{"report":{"issues":[],"efficiency_score":100}}`},
		{"score out of range", `{"source_id":"a","report":{"issues":[],"efficiency_score":180}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rr := post(t, f.h, "/api/v1/reports", "application/json", []byte(tt.body))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

// --- GET /api/v1/runs -------------------------------------------------------

func TestListRuns_FilterBySource(t *testing.T) {
	f := newFixture(t)
	f.store.Put(run("r1", "ahu-1", 90, 0))
	f.store.Put(run("r2", "ahu-2", 70, 0))
	f.store.Put(run("r3", "ahu-1", 80, 0))

	rr := get(t, f.h, "/api/v1/runs")
	var all []api.RunSummary
	decode(t, rr, &all)
	if len(all) != 3 {
		t.Fatalf("runs: got %d, want 3", len(all))
	}

	rr = get(t, f.h, "/api/v1/runs?source=ahu-1")
	var filtered []api.RunSummary
	decode(t, rr, &filtered)
	if len(filtered) != 2 {
		t.Fatalf("filtered runs: got %d, want 2", len(filtered))
	}
	for _, r := range filtered {
		if r.SourceID != "ahu-1" {
			t.Errorf("unexpected source %q", r.SourceID)
		}
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.h, "/api/v1/runs")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	f.store.Put(run("r1", "ahu-1", 55, 0))

	rr := get(t, f.h, "/api/v1/runs/r1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.RunResponse
	decode(t, rr, &resp)
	if resp.ID != "r1" || resp.Summary.Grade != "poor" {
		t.Errorf("run: %+v", resp)
	}

	if rr := get(t, f.h, "/api/v1/runs/missing"); rr.Code != http.StatusNotFound {
		t.Errorf("missing run status: got %d, want 404", rr.Code)
	}
}

// --- GET /api/v1/health -----------------------------------------------------

func TestHealth_Empty(t *testing.T) {
	f := newFixture(t)
	var resp api.HealthResponse
	decode(t, get(t, f.h, "/api/v1/health"), &resp)
	if resp.Grade != "unknown" || resp.SourceCount != 0 {
		t.Errorf("health: %+v", resp)
	}
}

func TestHealth_LatestPerSource(t *testing.T) {
	f := newFixture(t)
	f.store.Put(run("a1", "ahu-1", 90, 0))
	f.store.Put(run("b1", "ahu-2", 70, 0))
	f.store.Put(run("c1", "ahu-3", 20, 0))

	var resp api.HealthResponse
	decode(t, get(t, f.h, "/api/v1/health"), &resp)

	if resp.SourceCount != 3 || resp.RunCount != 3 {
		t.Errorf("counts: %+v", resp)
	}
	if resp.GoodCount != 1 || resp.FairCount != 1 || resp.PoorCount != 1 {
		t.Errorf("grade counts: %+v", resp)
	}
	if resp.OverallScore != 60 || resp.Grade != "fair" {
		t.Errorf("overall: got %v %s, want 60 fair", resp.OverallScore, resp.Grade)
	}
}

// --- GET /api/v1/alerts and /api/v1/snapshot --------------------------------

func TestAlerts_EmptyArray(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.h, "/api/v1/alerts")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, config.AlertRule{Name: "low", Condition: "efficiency_score < 60"})
	rr := post(t, f.h, "/api/v1/analyze?source=ahu-1", "text/csv", []byte(sampleCSV))
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze status: %d", rr.Code)
	}

	var snap api.SnapshotResponse
	decode(t, get(t, f.h, "/api/v1/snapshot"), &snap)
	if len(snap.Sources) != 1 || snap.Sources[0].SourceID != "ahu-1" {
		t.Errorf("sources: %+v", snap.Sources)
	}
	if len(snap.Alerts) != 1 {
		t.Errorf("alerts: got %d, want 1", len(snap.Alerts))
	}
	if _, err := time.Parse(time.RFC3339, snap.GeneratedAt); err != nil {
		t.Errorf("generated_at: %v", err)
	}
}

// --- method and content type checks -----------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/analyze"},
		{http.MethodGet, "/api/v1/reports"},
		{http.MethodPost, "/api/v1/runs"},
		{http.MethodDelete, "/api/v1/runs/r1"},
		{http.MethodPost, "/api/v1/health"},
		{http.MethodPost, "/api/v1/alerts"},
		{http.MethodPut, "/api/v1/snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			f.h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("status: got %d, want 405", rr.Code)
			}
		})
	}
}

func TestContentTypeJSON(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/v1/runs", "/api/v1/health", "/api/v1/alerts", "/api/v1/snapshot"} {
		rr := get(t, f.h, path)
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s Content-Type: got %q, want application/json", path, ct)
		}
	}
}
