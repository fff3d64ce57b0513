package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/yshiba/kujibiki/internal/models"
)

func newTestSession(id string) *models.Session {
	return &models.Session{
		ID:              id,
		HostPasscode:    "123456",
		MaxParticipants: 10,
		Participants:    make(map[string]*models.Participant),
		LotteryState:    models.NewLotteryState(),
	}
}

func TestGetReturnsLiveSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, DefaultTTL, DefaultSweepInterval)

	s.Create(newTestSession("abc12345"))

	got, ok := s.Get("abc12345")
	require.True(t, ok)
	require.Equal(t, "abc12345", got.ID)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestGetExpiresAtTTLBoundary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, DefaultTTL, DefaultSweepInterval)

	s.Create(newTestSession("abc12345"))

	clock.Advance(DefaultTTL - time.Second)
	_, ok := s.Get("abc12345")
	require.True(t, ok, "entry should be live just before the TTL")

	clock.Advance(time.Second)
	_, ok = s.Get("abc12345")
	require.False(t, ok, "entry should be absent at exactly the TTL")

	// Lazy expiry evicted the entry
	s.mu.Lock()
	_, present := s.entries["abc12345"]
	s.mu.Unlock()
	require.False(t, present)
}

func TestUpdate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, DefaultTTL, DefaultSweepInterval)

	session := newTestSession("abc12345")
	require.False(t, s.Update(session), "update on absent id fails")

	s.Create(session)
	session.AddParticipant(&models.Participant{ID: "p1", Number: 1})
	require.True(t, s.Update(session))

	got, ok := s.Get("abc12345")
	require.True(t, ok)
	require.Equal(t, 1, got.ParticipantCount())

	clock.Advance(DefaultTTL)
	require.False(t, s.Update(session), "update on expired id fails")
}

func TestUpdateKeepsOriginalExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, DefaultTTL, DefaultSweepInterval)

	session := newTestSession("abc12345")
	s.Create(session)

	clock.Advance(DefaultTTL - time.Minute)
	require.True(t, s.Update(session), "update does not extend the TTL")

	clock.Advance(time.Minute)
	_, ok := s.Get("abc12345")
	require.False(t, ok)
}

func TestDeleteAndHas(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, DefaultTTL, DefaultSweepInterval)

	require.False(t, s.Delete("missing"))
	require.False(t, s.Has("missing"))

	s.Create(newTestSession("abc12345"))
	require.True(t, s.Has("abc12345"))
	require.True(t, s.Delete("abc12345"))
	require.False(t, s.Has("abc12345"))
}

func TestBackgroundSweepEvictsExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, DefaultTTL, DefaultSweepInterval)

	for i := 0; i < 5; i++ {
		s.Create(newTestSession(fmt.Sprintf("session%d", i)))
	}

	s.Start()
	defer s.Stop()

	// Wait until the sweeper is parked on its ticker before advancing
	clock.BlockUntil(1)
	clock.Advance(DefaultTTL + DefaultSweepInterval)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries) == 0
	}, time.Second, 5*time.Millisecond, "sweep should reclaim expired entries")
}

func TestStopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()

	s := New(clock, DefaultTTL, DefaultSweepInterval)
	s.Start()
	s.Stop()
	s.Stop()

	// Stop without Start must not block
	s2 := New(clock, DefaultTTL, DefaultSweepInterval)
	s2.Stop()
}
