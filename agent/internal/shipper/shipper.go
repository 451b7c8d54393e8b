package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hvacdiag/hvacdiag/agent/internal/compute"
	"github.com/hvacdiag/hvacdiag/agent/internal/config"
	"github.com/hvacdiag/hvacdiag/agent/internal/security"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// ReportsPath is the server route that accepts shipped runs.
const ReportsPath = "/api/v1/reports"

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// errPermanent marks a response the server will never accept; retrying the
// same run is pointless.
var errPermanent = errors.New("permanent")

// Shipper buffers runs and POSTs them to hvacdiag-server.
// Ship() is non-blocking; when the buffer is full the oldest run is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg    config.AgentConfig
	url    string
	client *http.Client
	bo     *backoff

	mu  sync.Mutex // serialises evict-then-enqueue in Ship
	buf chan types.Run
}

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) (*Shipper, error) {
	client, err := security.NewHTTPClient(cfg.ServerAuth, config.TLSConfig{}, sendTimeout)
	if err != nil {
		return nil, fmt.Errorf("shipper: %w", err)
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	return &Shipper{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.ServerEndpoint, "/") + ReportsPath,
		client: client,
		bo:     newBackoff(backoffInitial, backoffMax),
		buf:    make(chan types.Run, size),
	}, nil
}

// Ship converts a compute.Result to a run and enqueues it. Results that
// carry no report are ignored. If the buffer is full the oldest run is
// evicted to make room.
func (s *Shipper) Ship(res *compute.Result) {
	if !res.OK() {
		slog.Debug("shipper: skipping failed cycle", "source", res.SourceID, "err", res.ErrorMessage)
		return
	}
	run := toRun(res)

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.buf <- run:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest run",
				"source", res.SourceID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- run
	}
}

// Pending returns the number of runs waiting to be delivered.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run flushes the buffer every ShipInterval until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	interval := s.cfg.ShipInterval
	if interval <= 0 {
		interval = config.DefaultShipInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush delivers every buffered run. A transient failure is retried with
// backoff before moving on, so delivery order is preserved.
func (s *Shipper) flush(ctx context.Context) {
	for {
		var run types.Run
		select {
		case run = <-s.buf:
		default:
			return
		}

		for {
			err := s.send(ctx, run)
			if err == nil {
				s.bo.reset()
				slog.Debug("shipper: run delivered", "source", run.SourceID)
				break
			}
			if errors.Is(err, errPermanent) {
				slog.Error("shipper: server rejected run, discarding",
					"source", run.SourceID, "err", err)
				break
			}

			wait := s.bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.url, "source", run.SourceID, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// send POSTs one run. 4xx responses are wrapped in errPermanent.
func (s *Shipper) send(ctx context.Context, run types.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("%w: encode run: %v", errPermanent, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d: %s", errPermanent, resp.StatusCode, bytes.TrimSpace(msg))
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, ceiling time.Duration) *backoff {
	return &backoff{initial: initial, max: ceiling, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
