package store

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/yshiba/kujibiki/internal/models"
)

const (
	// DefaultTTL is how long a session lives after creation
	DefaultTTL = 24 * time.Hour
	// DefaultSweepInterval is how often expired sessions are reclaimed
	DefaultSweepInterval = time.Hour
)

type entry struct {
	session   *models.Session
	expiresAt time.Time
}

// Store is an in-memory session store with a fixed TTL per entry. Expired
// entries are evicted lazily on read and eagerly by a background sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	clock clockwork.Clock
	ttl   time.Duration
	sweep time.Duration

	started  bool
	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// New creates a session store. The clock is injected so TTL behavior is
// testable with a fake clock.
func New(clock clockwork.Clock, ttl, sweepInterval time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		clock:   clock,
		ttl:     ttl,
		sweep:   sweepInterval,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the background sweep. Call Stop to shut it down.
func (s *Store) Start() {
	s.started = true
	go s.run()
}

// Stop terminates the background sweep and waits for it to exit. Safe to call
// more than once, and a no-op if the sweep was never started.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	if s.started {
		<-s.stopped
	}
}

func (s *Store) run() {
	defer close(s.stopped)

	ticker := s.clock.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.Chan():
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	now := s.clock.Now()

	s.mu.Lock()
	evicted := 0
	for id, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, id)
			evicted++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if evicted > 0 {
		log.Info().
			Int("evicted", evicted).
			Int("remaining", remaining).
			Msg("swept expired sessions")
	}
}

// Create inserts a session with a fresh expiry. An existing entry under the
// same ID is overwritten; callers guarantee fresh IDs.
func (s *Store) Create(session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[session.ID] = &entry{
		session:   session,
		expiresAt: s.clock.Now().Add(s.ttl),
	}
}

// Get returns the session for the given ID. An expired entry is evicted and
// reported as absent.
func (s *Store) Get(id string) (*models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.After(s.clock.Now()) {
		delete(s.entries, id)
		return nil, false
	}
	return e.session, true
}

// Update replaces the stored session under the same ID, keeping the original
// expiry. Returns false if the entry is absent or already expired.
func (s *Store) Update(session *models.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[session.ID]
	if !ok {
		return false
	}
	if !e.expiresAt.After(s.clock.Now()) {
		delete(s.entries, session.ID)
		return false
	}
	e.session = session
	return true
}

// Delete removes a session. Returns whether an entry was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// Has reports whether a live session exists for the given ID
func (s *Store) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}
