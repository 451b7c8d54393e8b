package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/hvacdiag/hvacdiag/agent/internal/config"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// Gauges read from a building-management exporter.
const (
	metricTemperature = "hvac_temperature_celsius"
	metricSetpoint    = "hvac_setpoint_celsius"
	metricRuntime     = "hvac_runtime_minutes"
	metricOccupancy   = "hvac_occupancy"
)

// readingTimeLayout is the clock label stamped on sampled readings.
const readingTimeLayout = "15:04"

type promScraper struct {
	src    config.Source
	client *http.Client
	now    func() time.Time
}

// Scrape samples the exporter once and returns a single reading. A gauge
// missing from the exposition leaves the corresponding field absent.
func (s *promScraper) Scrape(ctx context.Context) (*ScrapeResult, error) {
	at := s.now()
	res := newResult(s.src, at)

	mfs, err := fetchMetrics(ctx, s.client, s.src.Endpoint)
	if err != nil {
		res.Err = fmt.Errorf("prometheus scrape %q: %w", s.src.ID, err)
		slog.Warn("scraper: prometheus fetch failed", "source", s.src.ID, "err", err)
		return res, nil
	}

	r := types.Reading{
		Time:       at.Format(readingTimeLayout),
		Temp:       s.sample(mfs[metricTemperature]),
		TargetTemp: s.sample(mfs[metricSetpoint]),
		Runtime:    s.sample(mfs[metricRuntime]),
		Occupancy:  s.sample(mfs[metricOccupancy]),
	}
	res.Readings = []types.Reading{r}
	return res, nil
}

// sample returns the first finite value among the series in mf that match
// the source's selector, or nil when none does.
func (s *promScraper) sample(mf *dto.MetricFamily) *float64 {
	if mf == nil {
		return nil
	}
	var (
		val     *float64
		matched int
	)
	for _, m := range mf.GetMetric() {
		if !matchLabels(m.GetLabel(), s.src.Labels) {
			continue
		}
		matched++
		if val != nil {
			continue
		}
		if v, ok := metricValue(m); ok {
			val = &v
		}
	}
	if matched > 1 {
		slog.Debug("scraper: selector matched several series, using the first",
			"source", s.src.ID, "metric", mf.GetName(), "series", matched)
	}
	return val
}

// matchLabels reports whether every selector pair is present on the series.
func matchLabels(pairs []*dto.LabelPair, selector map[string]string) bool {
	for k, want := range selector {
		found := false
		for _, lp := range pairs {
			if lp.GetName() == k {
				found = lp.GetValue() == want
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// metricValue reads a gauge, untyped or counter sample. NaN and ±Inf
// samples are treated as missing.
func metricValue(m *dto.Metric) (float64, bool) {
	var v float64
	switch {
	case m.Gauge != nil:
		v = m.Gauge.GetValue()
	case m.Untyped != nil:
		v = m.Untyped.GetValue()
	case m.Counter != nil:
		v = m.Counter.GetValue()
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
