package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hvacdiag/hvacdiag/agent/internal/config"
	"github.com/hvacdiag/hvacdiag/pkg/dataset"
)

// csvScraper re-reads a sensor log on every cycle. The endpoint is either a
// local path or an http(s) URL serving the file.
type csvScraper struct {
	src    config.Source
	client *http.Client
	now    func() time.Time
}

func (s *csvScraper) Scrape(ctx context.Context) (*ScrapeResult, error) {
	res := newResult(s.src, s.now())
	res.Replace = true

	body, err := s.open(ctx)
	if err != nil {
		res.Err = fmt.Errorf("csv scrape %q: %w", s.src.ID, err)
		slog.Warn("scraper: csv open failed", "source", s.src.ID, "err", err)
		return res, nil
	}
	defer body.Close()

	readings, err := dataset.ParseCSV(body)
	if err != nil {
		res.Err = fmt.Errorf("csv scrape %q: %w", s.src.ID, err)
		slog.Warn("scraper: csv parse failed", "source", s.src.ID, "err", err)
		return res, nil
	}
	res.Readings = readings
	return res, nil
}

func (s *csvScraper) open(ctx context.Context) (io.ReadCloser, error) {
	ep := s.src.Endpoint
	if strings.HasPrefix(ep, "http://") || strings.HasPrefix(ep, "https://") {
		return get(ctx, s.client, ep, "text/csv")
	}
	return os.Open(strings.TrimPrefix(ep, "file://"))
}
