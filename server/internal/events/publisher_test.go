package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/config"
)

// fakeWriter records written messages and can fail on demand.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]kafka.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func testRun(id string) types.Run {
	return types.Run{
		ID:         id,
		SourceID:   "ahu-1",
		SourceType: "prometheus",
		Report: types.Report{
			Issues: []types.Issue{
				{Issue: types.CategoryExcessiveRuntime, Severity: types.SeverityHigh, Cost: 60},
			},
			EfficiencyScore: 40,
			TotalCost:       60,
			RowCount:        2,
		},
	}
}

func TestPublisher_WritesRunCompleted(t *testing.T) {
	w := &fakeWriter{}
	p := newWithWriter("hvac.runs", w, 8)
	p.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	p.Publish(testRun("run-1"))

	deadline := time.Now().Add(2 * time.Second)
	for len(w.written()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	msgs := w.written()
	if len(msgs) != 1 {
		t.Fatalf("written = %d, want 1", len(msgs))
	}
	if string(msgs[0].Key) != "ahu-1" {
		t.Errorf("key = %q, want ahu-1", msgs[0].Key)
	}
	var ev RunCompleted
	if err := json.Unmarshal(msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != TypeRunCompleted || ev.RunID != "run-1" || ev.EventID == "" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Grade != "poor" || ev.HighIssues != 1 || ev.IssueCount != 1 || ev.TotalCost != 60 {
		t.Errorf("event summary = %+v", ev)
	}
	if !w.closed {
		t.Error("writer should be closed when Run returns")
	}
	if pub, _, _ := p.Stats(); pub != 1 {
		t.Errorf("published = %d, want 1", pub)
	}
}

func TestPublisher_DrainsOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := newWithWriter("hvac.runs", w, 8)
	for i := 0; i < 3; i++ {
		p.Publish(testRun("r"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	if got := len(w.written()); got != 3 {
		t.Errorf("written after drain = %d, want 3", got)
	}
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	p := newWithWriter("hvac.runs", &fakeWriter{}, 2)
	for i := 0; i < 5; i++ {
		p.Publish(testRun("r"))
	}
	if _, dropped, _ := p.Stats(); dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
}

func TestPublisher_CountsWriteFailures(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	p := newWithWriter("hvac.runs", w, 8)
	p.Publish(testRun("a"))
	p.Publish(testRun("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	if _, _, failed := p.Stats(); failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
}

func TestPublisher_Disabled(t *testing.T) {
	p := New(config.EventsConfig{Enabled: false})
	if p.Enabled() {
		t.Fatal("publisher should be disabled")
	}
	p.Publish(testRun("r"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)
	if pub, dropped, failed := p.Stats(); pub+dropped+failed != 0 {
		t.Errorf("disabled publisher recorded activity: %d/%d/%d", pub, dropped, failed)
	}
}
