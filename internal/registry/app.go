package registry

import (
	"crypto/subtle"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yshiba/kujibiki/internal/models"
)

// Allowed session capacity range
const (
	MinParticipants = 5
	MaxParticipants = 50
)

// SessionStore defines what the registry needs from the storage layer
type SessionStore interface {
	Create(session *models.Session)
	Get(id string) (*models.Session, bool)
	Update(session *models.Session) bool
	Has(id string) bool
}

// App handles session and participant business logic on top of the store.
// The unit of mutual exclusion is the session: every mutating operation for
// one session serializes on its per-ID lock while different sessions proceed
// independently.
type App struct {
	store SessionStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewApp creates a new registry App
func NewApp(store SessionStore) *App {
	return &App{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the lock for a session ID, creating it on demand
func (a *App) sessionLock(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// CreateSession creates a session with the given capacity, a fresh public ID
// and a random host passcode.
func (a *App) CreateSession(maxParticipants int) (*models.Session, error) {
	if maxParticipants < MinParticipants || maxParticipants > MaxParticipants {
		return nil, ErrInvalidCapacity
	}

	var id string
	for {
		generated, err := newSessionID()
		if err != nil {
			return nil, err
		}
		// The ID space makes collisions vanishingly rare; regenerate on
		// the off chance.
		if !a.store.Has(generated) {
			id = generated
			break
		}
	}

	passcode, err := newHostPasscode()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:              id,
		HostPasscode:    passcode,
		MaxParticipants: maxParticipants,
		Participants:    make(map[string]*models.Participant),
		LotteryState:    models.NewLotteryState(),
	}
	a.store.Create(session)

	log.Info().
		Str("session_id", session.ID).
		Int("max_participants", maxParticipants).
		Msg("session created")
	return session, nil
}

// GetSession returns the session for the given ID, absent for unknown or
// expired IDs.
func (a *App) GetSession(id string) (*models.Session, bool) {
	return a.store.Get(id)
}

// Update runs fn against the session under its per-session lock and persists
// the result. Returns ErrSessionNotFound if the session is absent or expired.
func (a *App) Update(sessionID string, fn func(*models.Session) error) error {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	session, ok := a.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if err := fn(session); err != nil {
		return err
	}
	a.store.Update(session)
	return nil
}

// View runs fn against the session under its per-session lock without
// persisting, so reads observe a consistent snapshot.
func (a *App) View(sessionID string, fn func(*models.Session) error) error {
	l := a.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	session, ok := a.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return fn(session)
}

// JoinSession admits a participant, assigning the next sequential draw
// number. The capacity check and number assignment are atomic per session.
func (a *App) JoinSession(sessionID, name string) (*models.Session, *models.Participant, error) {
	var joined *models.Participant
	var session *models.Session

	err := a.Update(sessionID, func(s *models.Session) error {
		if s.IsFull() {
			return ErrCapacityExceeded
		}
		joined = &models.Participant{
			ID:     newParticipantID(),
			Number: s.ParticipantCount() + 1,
			Name:   name,
		}
		s.AddParticipant(joined)
		session = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("session_id", sessionID).
		Str("participant_id", joined.ID).
		Int("number", joined.Number).
		Msg("participant joined")
	return session, joined, nil
}

// GetParticipant returns a copy of a participant within a session,
// absent-safe. A copy, so the caller cannot race with mutations happening
// under the session lock.
func (a *App) GetParticipant(sessionID, participantID string) (*models.Participant, bool) {
	var found *models.Participant
	err := a.View(sessionID, func(s *models.Session) error {
		if p, ok := s.Participant(participantID); ok {
			cp := *p
			found = &cp
		}
		return nil
	})
	if err != nil || found == nil {
		return nil, false
	}
	return found, true
}

// VerifyHostPasscode reports whether the passcode matches the session's host
// credential. An absent session verifies false, never errors.
func (a *App) VerifyHostPasscode(sessionID, passcode string) bool {
	session, ok := a.store.Get(sessionID)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(session.HostPasscode), []byte(passcode)) == 1
}

// MarkParticipantAsWinner records a win for a participant. Returns false if
// the session or participant is absent; idempotent otherwise.
func (a *App) MarkParticipantAsWinner(sessionID, participantID string, winOrder int) bool {
	marked := false
	err := a.Update(sessionID, func(s *models.Session) error {
		p, ok := s.Participant(participantID)
		if !ok {
			return nil
		}
		p.IsWinner = true
		p.WinOrder = winOrder
		marked = true
		return nil
	})
	return err == nil && marked
}
