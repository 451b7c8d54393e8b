package shipper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hvacdiag/hvacdiag/agent/internal/compute"
	"github.com/hvacdiag/hvacdiag/agent/internal/config"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// mockServer records runs POSTed to the reports route.
type mockServer struct {
	mu       sync.Mutex
	received []types.Run
	seenIDs  []string // run IDs of every decoded request, failed ones included
	failN    int // answer the first N calls with failStatus
	failCode int
	calls    int
}

func (m *mockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if r.Method != http.MethodPost || r.URL.Path != ReportsPath {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var run types.Run
	if err := json.NewDecoder(r.Body).Decode(&run); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.seenIDs = append(m.seenIDs, run.ID)
	if m.failN > 0 {
		m.failN--
		http.Error(w, "mock failure", m.failCode)
		return
	}
	m.received = append(m.received, run)
	w.WriteHeader(http.StatusAccepted)
}

func (m *mockServer) runs() []types.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Run, len(m.received))
	copy(out, m.received)
	return out
}

func (m *mockServer) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seenIDs...)
}

func (m *mockServer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// newTestShipper points a Shipper at srv with short intervals.
func newTestShipper(t *testing.T, srv *httptest.Server) *Shipper {
	t.Helper()
	s, err := New(config.AgentConfig{
		ServerEndpoint: srv.URL + "/",
		BufferSize:     10,
		ShipInterval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.bo = newBackoff(5*time.Millisecond, 20*time.Millisecond)
	return s
}

// makeComputeResult builds a minimal successful compute.Result.
func makeComputeResult(id string, score int) *compute.Result {
	return &compute.Result{
		SourceID:   id,
		SourceType: "prometheus",
		Timestamp:  time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		Grade:      "fair",
		UptimePct:  100,
		WindowLen:  4,
		Report: types.Report{
			Issues: []types.Issue{{
				Issue: types.CategoryExcessiveRuntime, Time: "08:00", Evidence: "150 min",
				Cost: 60, Severity: types.SeverityHigh, Action: types.ActionScheduleTechnician,
			}},
			EfficiencyScore: score,
			TotalCost:       60,
			RowCount:        4,
		},
	}
}

// waitFor polls cond until it holds or 2s pass.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- Tests ---

func TestShipper_DeliversRun(t *testing.T) {
	mock := &mockServer{}
	srv := httptest.NewServer(mock)
	defer srv.Close()

	s := newTestShipper(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeComputeResult("ahu-1", 80))
	waitFor(t, func() bool { return len(mock.runs()) > 0 })

	runs := mock.runs()
	if len(runs) != 1 {
		t.Fatalf("server received %d runs, want 1", len(runs))
	}
	if runs[0].SourceID != "ahu-1" {
		t.Errorf("SourceID = %q, want ahu-1", runs[0].SourceID)
	}
	if runs[0].Report.EfficiencyScore != 80 {
		t.Errorf("EfficiencyScore = %d, want 80", runs[0].Report.EfficiencyScore)
	}
	if len(runs[0].Report.Issues) != 1 || runs[0].Report.Issues[0].Evidence != "150 min" {
		t.Errorf("Issues = %+v", runs[0].Report.Issues)
	}
}

func TestShipper_PreservesOrder(t *testing.T) {
	mock := &mockServer{}
	srv := httptest.NewServer(mock)
	defer srv.Close()

	s := newTestShipper(t, srv)
	for i := 0; i < 5; i++ {
		s.Ship(makeComputeResult("ahu-1", i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	waitFor(t, func() bool { return len(mock.runs()) >= 5 })
	runs := mock.runs()
	if len(runs) != 5 {
		t.Fatalf("server received %d runs, want 5", len(runs))
	}
	for i, r := range runs {
		if r.Report.EfficiencyScore != i {
			t.Errorf("runs[%d] score = %d, want %d", i, r.Report.EfficiencyScore, i)
		}
	}
}

func TestShipper_RetriesServerErrors(t *testing.T) {
	mock := &mockServer{failN: 2, failCode: http.StatusServiceUnavailable}
	srv := httptest.NewServer(mock)
	defer srv.Close()

	s := newTestShipper(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeComputeResult("ahu-1", 50))
	waitFor(t, func() bool { return len(mock.runs()) > 0 })

	if got := len(mock.runs()); got != 1 {
		t.Fatalf("server received %d runs, want 1 after retries", got)
	}
	if got := mock.callCount(); got != 3 {
		t.Errorf("calls = %d, want 3 (two failures then success)", got)
	}
	ids := mock.ids()
	if len(ids) != 3 || ids[0] == "" {
		t.Fatalf("ids = %q, want three non-empty", ids)
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Errorf("retry carried id %q, want %q", id, ids[0])
		}
	}
}

func TestShipper_DiscardsOnClientError(t *testing.T) {
	mock := &mockServer{failN: 1, failCode: http.StatusBadRequest}
	srv := httptest.NewServer(mock)
	defer srv.Close()

	s := newTestShipper(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeComputeResult("bad", 1))
	s.Ship(makeComputeResult("good", 2))
	waitFor(t, func() bool { return len(mock.runs()) > 0 })

	runs := mock.runs()
	if len(runs) != 1 || runs[0].SourceID != "good" {
		t.Fatalf("runs = %+v, want only the second run", runs)
	}
	if got := mock.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2 (rejected run is not retried)", got)
	}
}

func TestShipper_SkipsFailedResults(t *testing.T) {
	s, err := New(config.AgentConfig{ServerEndpoint: "http://unused", BufferSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	s.Ship(&compute.Result{SourceID: "ahu-1", ErrorMessage: "connection refused"})
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	// BufferSize=3; Ship 5 items while the shipper is not running.
	s, err := New(config.AgentConfig{ServerEndpoint: "http://unused", BufferSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		s.Ship(makeComputeResult("ahu-1", i))
	}

	var scores []int
	for len(s.buf) > 0 {
		scores = append(scores, (<-s.buf).Report.EfficiencyScore)
	}
	if len(scores) != 3 {
		t.Fatalf("buffer has %d items, want 3", len(scores))
	}
	for i, want := range []int{2, 3, 4} {
		if scores[i] != want {
			t.Errorf("scores[%d] = %d, want %d", i, scores[i], want)
		}
	}
}

func TestToRun(t *testing.T) {
	res := makeComputeResult("rtu-2", 91)
	res.Timestamp = time.Date(2026, 1, 1, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	run := toRun(res)

	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("ID = %q, want a uuid: %v", run.ID, err)
	}
	if other := toRun(res); other.ID == run.ID {
		t.Errorf("two conversions share ID %q", run.ID)
	}
	if run.SourceID != "rtu-2" || run.SourceType != "prometheus" {
		t.Errorf("source = %q/%q", run.SourceID, run.SourceType)
	}
	if run.ReceivedAt.Location() != time.UTC || run.ReceivedAt.Hour() != 14 {
		t.Errorf("ReceivedAt = %v, want 14:00 UTC", run.ReceivedAt)
	}
	if run.Report.RowCount != 4 {
		t.Errorf("RowCount = %d, want 4", run.Report.RowCount)
	}

	empty := toRun(&compute.Result{SourceID: "x"})
	if empty.Report.Issues == nil {
		t.Error("Issues should encode as [] not null")
	}
}

func TestBackoff_ResetsAndCaps(t *testing.T) {
	b := newBackoff(backoffInitial, backoffMax)
	if first := b.next(); first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 50; i++ {
		// With jitter, max is backoffMax * 1.25.
		if d := b.next(); d > backoffMax*5/4 {
			t.Errorf("backoff[%d] = %v, exceeds 1.25×max", i, d)
		}
	}
	b.reset()
	if after := b.next(); after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	// Unreachable server: Run must still return promptly on cancel.
	s, err := New(config.AgentConfig{ServerEndpoint: "http://127.0.0.1:1", BufferSize: 2, ShipInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s.Ship(makeComputeResult("ahu-1", 10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
