package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// Entry is a run together with the time it was stored.
type Entry struct {
	Run      types.Run
	StoredAt time.Time
}

// Store is a thread-safe in-memory run store, keyed by run ID.
// A background goroutine (Run) periodically evicts runs older than the
// configured TTL. A TTL of zero keeps runs forever.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the run with run.ID.
func (s *Store) Put(run types.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[run.ID] = &Entry{Run: run, StoredAt: s.now()}
}

// Get returns the Entry for the given run ID and whether it was found.
// Runs past their TTL are reported as missing even before eviction.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok || !s.live(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns the live runs, newest first. A non-empty sourceID restricts
// the result to that source.
func (s *Store) List(sourceID string) []*Entry {
	s.mu.RLock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if !s.live(e, now) {
			continue
		}
		if sourceID != "" && e.Run.SourceID != sourceID {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

// Latest returns the newest live run of every source, ordered by source ID.
func (s *Store) Latest() []*Entry {
	s.mu.RLock()
	now := s.now()
	newest := make(map[string]*Entry)
	for _, e := range s.data {
		if !s.live(e, now) {
			continue
		}
		if cur, ok := newest[e.Run.SourceID]; !ok || newer(e, cur) {
			newest[e.Run.SourceID] = e
		}
	}
	s.mu.RUnlock()

	out := make([]*Entry, 0, len(newest))
	for _, e := range newest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Run.SourceID < out[j].Run.SourceID })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries stored before now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired runs", "count", n)
			}
		}
	}
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.StoredAt.After(now.Add(-s.ttl))
}

// newer orders by ReceivedAt, then StoredAt, then ID for a stable result.
func newer(a, b *Entry) bool {
	if !a.Run.ReceivedAt.Equal(b.Run.ReceivedAt) {
		return a.Run.ReceivedAt.After(b.Run.ReceivedAt)
	}
	if !a.StoredAt.Equal(b.StoredAt) {
		return a.StoredAt.After(b.StoredAt)
	}
	return a.Run.ID > b.Run.ID
}

func sortNewestFirst(es []*Entry) {
	sort.Slice(es, func(i, j int) bool { return newer(es[i], es[j]) })
}
