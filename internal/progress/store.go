package progress

import (
	"context"
	"sync"
	"time"

	"github.com/italolelis/media_toolbox/internal/logctx"
)

// Store maps a caller supplied download identifier to the latest State of that download.
//
// Writes are last-write-wins. The store assumes a single writer per identifier (the request
// that owns the download) and any number of readers; concurrent writers on the same key
// never corrupt the map, but the resulting order between them is undefined.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	// waiters holds one wake channel per identifier that a reader is watching.
	waiters map[string]chan struct{}

	ttl time.Duration
	now func() time.Time
}

type entry struct {
	state      State
	terminalAt time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL sets how long a terminal entry is retained before Sweep evicts it.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store. Terminal entries are kept for ten minutes by default.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		waiters: make(map[string]chan struct{}),
		ttl:     10 * time.Minute,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Set overwrites the state for id and wakes the goroutines waiting on Changed(id).
func (s *Store) Set(id string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}

	e.state = state
	e.terminalAt = time.Time{}

	if state.Status.IsTerminal() {
		e.terminalAt = s.now()
	}

	s.wake(id)
}

// wake closes the wake channel of id, if any. Callers hold s.mu.
func (s *Store) wake(id string) {
	if ch, ok := s.waiters[id]; ok {
		close(ch)
		delete(s.waiters, id)
	}
}

// Get returns the current state for id. ok is false when the id is unknown.
func (s *Store) Get(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return State{}, false
	}

	return e.state, true
}

// Changed returns a channel that is closed by the next Set on id. Writes to other
// identifiers never close it. Sweep may also close it; a woken reader must re-read the state.
func (s *Store) Changed(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.waiters[id]
	if !ok {
		ch = make(chan struct{})
		s.waiters[id] = ch
	}

	return ch
}

// Len returns the number of tracked identifiers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Sweep evicts entries that have been terminal for longer than the store TTL and returns how
// many were removed. Non-terminal entries are never evicted. Wake channels of evicted or
// never written identifiers are released too, so abandoned waits do not accumulate.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for id, e := range s.entries {
		if e.terminalAt.IsZero() {
			continue
		}

		if now.Sub(e.terminalAt) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}

	for id := range s.waiters {
		if _, ok := s.entries[id]; !ok {
			s.wake(id)
		}
	}

	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("progress sweeper shutting down")

			return nil
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				logger.Debug("evicted expired progress entries", "count", removed, "remaining", s.Len())
			}
		}
	}
}
