package compute

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hvacdiag/hvacdiag/agent/internal/scraper"
	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// Result is the diagnosis of one source after a scrape cycle, ready to be
// handed to the shipper.
type Result struct {
	SourceID   string
	SourceType string
	Timestamp  time.Time

	// Report is the analysis of the source's current window. It is the zero
	// value when ErrorMessage is set.
	Report types.Report
	Grade  string

	UptimePct float64

	// WindowLen is the number of readings the report was computed over.
	WindowLen int

	// ErrorMessage is non-empty when the scrape or the analysis failed.
	ErrorMessage string
}

// OK reports whether the result carries a report worth shipping.
func (r *Result) OK() bool { return r.ErrorMessage == "" }

// Engine keeps a rolling window of readings per source and re-analyzes the
// window on every successful cycle.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	windowSize int

	mu     sync.Mutex
	states map[string]*sourceState
}

// NewEngine returns an Engine that keeps at most windowSize readings per
// source. A non-positive windowSize keeps a single reading.
func NewEngine(windowSize int) *Engine {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Engine{windowSize: windowSize, states: make(map[string]*sourceState)}
}

// Process ingests a ScrapeResult and returns the source's current diagnosis.
//
// now is passed explicitly so callers (and tests) control the clock.
// A failed scrape leaves the window untouched.
func (e *Engine) Process(res *scraper.ScrapeResult, now time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(res.SourceID)
	success := res.Err == nil
	st.recordScrape(success)

	out := &Result{
		SourceID:   res.SourceID,
		SourceType: res.SourceType,
		Timestamp:  now,
		UptimePct:  st.uptimePct(),
	}

	if !success {
		slog.Warn("compute: scrape failed, window unchanged",
			"source", res.SourceID, "err", res.Err)
		out.ErrorMessage = res.Err.Error()
		out.WindowLen = len(st.window)
		return out
	}

	if res.Replace {
		st.window = st.window[:0]
	}
	st.push(res.Readings, e.windowSize)
	out.WindowLen = len(st.window)

	rep, err := diagnostic.Analyze(st.window)
	if err != nil {
		slog.Error("compute: analysis failed", "source", res.SourceID, "err", err)
		out.ErrorMessage = err.Error()
		return out
	}
	out.Report = rep
	out.Grade = diagnostic.Grade(rep.EfficiencyScore)
	return out
}

// Window returns a copy of the readings currently held for sourceID.
func (e *Engine) Window(sourceID string) []types.Reading {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[sourceID]
	if !ok {
		return nil
	}
	out := make([]types.Reading, len(st.window))
	copy(out, st.window)
	return out
}

// sourceState holds the reading window and uptime history of one source.
type sourceState struct {
	window  []types.Reading
	history []bool // scrape outcomes, newest last
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

// push appends rs and keeps only the newest limit readings.
func (st *sourceState) push(rs []types.Reading, limit int) {
	st.window = append(st.window, rs...)
	if over := len(st.window) - limit; over > 0 {
		st.window = append(st.window[:0], st.window[over:]...)
	}
}

func (st *sourceState) recordScrape(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sourceState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
