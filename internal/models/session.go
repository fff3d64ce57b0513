package models

import "time"

// LotteryStatus represents the lifecycle phase of a session's lottery
type LotteryStatus string

const (
	LotteryStatusWaiting    LotteryStatus = "waiting"
	LotteryStatusInProgress LotteryStatus = "in_progress"
	LotteryStatusCompleted  LotteryStatus = "completed"
)

// Participant represents a joined member of a session
type Participant struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	Name     string `json:"name,omitempty"`
	IsWinner bool   `json:"is_winner"`
	WinOrder int    `json:"win_order,omitempty"`
}

// LotteryState tracks the draw progress for one session
type LotteryState struct {
	Status       LotteryStatus `json:"status"`
	CurrentRound int           `json:"current_round"`
	Winners      []string      `json:"winners"`
}

// Session represents a live lottery session
type Session struct {
	ID              string                  `json:"id"`
	HostPasscode    string                  `json:"-"`
	MaxParticipants int                     `json:"max_participants"`
	Participants    map[string]*Participant `json:"participants"`
	LotteryState    LotteryState            `json:"lottery_state"`
	CreatedAt       time.Time               `json:"created_at"`

	// joinOrder holds participant IDs in arrival order, which is also
	// draw-number order.
	joinOrder []string
}

// NewLotteryState returns the initial lottery state
func NewLotteryState() LotteryState {
	return LotteryState{
		Status:       LotteryStatusWaiting,
		CurrentRound: 0,
		Winners:      []string{},
	}
}

// AddParticipant inserts a participant, preserving arrival order. A duplicate
// ID means the registry's per-session serialization was broken.
func (s *Session) AddParticipant(p *Participant) {
	if _, exists := s.Participants[p.ID]; exists {
		panic("models: duplicate participant id " + p.ID)
	}
	s.Participants[p.ID] = p
	s.joinOrder = append(s.joinOrder, p.ID)
}

// Participant returns the participant with the given ID, if present
func (s *Session) Participant(id string) (*Participant, bool) {
	p, ok := s.Participants[id]
	return p, ok
}

// ParticipantsInOrder returns participants in arrival (draw-number) order
func (s *Session) ParticipantsInOrder() []*Participant {
	out := make([]*Participant, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		out = append(out, s.Participants[id])
	}
	return out
}

// ParticipantCount returns the number of joined participants
func (s *Session) ParticipantCount() int {
	return len(s.Participants)
}

// IsFull reports whether the session has reached its capacity
func (s *Session) IsFull() bool {
	return len(s.Participants) >= s.MaxParticipants
}
