package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/hvacdiag/hvacdiag/agent/internal/config"
	"github.com/hvacdiag/hvacdiag/agent/internal/security"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

const defaultScrapeTimeout = 10 * time.Second

// ScrapeResult is the normalized output of one scrape cycle for a single source.
type ScrapeResult struct {
	SourceID   string
	SourceType string
	ScrapedAt  time.Time

	// Readings holds the rows produced by this cycle: one sampled reading for
	// live exporters, the whole file for csv sources.
	Readings []types.Reading

	// Replace tells the compute engine to discard its window and use
	// Readings as the new window instead of appending.
	Replace bool

	// Err is non-nil if the scrape itself failed (connectivity, auth, parse).
	// The compute engine counts it as a down cycle.
	Err error
}

// Scraper is the common interface implemented by every equipment scraper.
type Scraper interface {
	Scrape(ctx context.Context) (*ScrapeResult, error)
}

// New returns the Scraper for the given source configuration.
// It builds the HTTP client once and reuses it across scrape calls.
func New(src config.Source) (Scraper, error) {
	client, err := security.NewHTTPClient(src.Auth, src.TLS, defaultScrapeTimeout)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", src.ID, err)
	}
	switch src.Type {
	case config.SourcePrometheus:
		return &promScraper{src: src, client: client, now: time.Now}, nil
	case config.SourceCSV:
		return &csvScraper{src: src, client: client, now: time.Now}, nil
	default:
		return nil, fmt.Errorf("scraper: unsupported type %q", src.Type)
	}
}

// get performs an authenticated GET and returns the response body.
// The caller closes the body.
func get(ctx context.Context, client *http.Client, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// fetchMetrics GETs url and returns the parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	body, err := get(ctx, client, url, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return parseMetrics(body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// newResult initialises an empty ScrapeResult stamped with at.
func newResult(src config.Source, at time.Time) *ScrapeResult {
	return &ScrapeResult{
		SourceID:   src.ID,
		SourceType: src.Type,
		ScrapedAt:  at.UTC(),
	}
}
