package lottery

import (
	"math/rand/v2"

	"github.com/yshiba/kujibiki/internal/models"
)

// Engine performs the draw protocol over a session's participant set. It
// mutates sessions in place and holds no state of its own; callers provide
// per-session mutual exclusion.
type Engine struct {
	// intN picks a uniform index in [0, n). Overridable in tests.
	intN func(n int) int
}

// NewEngine creates a draw engine backed by math/rand. Fairness only needs
// uniformity over the candidate set, not cryptographic unpredictability.
func NewEngine() *Engine {
	return &Engine{intN: rand.IntN}
}

// DrawWinner selects one remaining candidate uniformly at random, marks it as
// a winner and advances the round. Returns nil when no candidates remain,
// leaving state untouched, so it is safe to call repeatedly once completed.
func (e *Engine) DrawWinner(session *models.Session) *models.Participant {
	candidates := e.Candidates(session)
	if len(candidates) == 0 {
		return nil
	}

	winner := candidates[e.intN(len(candidates))]
	winner.IsWinner = true
	winner.WinOrder = session.LotteryState.CurrentRound + 1

	session.LotteryState.CurrentRound++
	session.LotteryState.Winners = append(session.LotteryState.Winners, winner.ID)

	if e.IsCompleted(session) {
		session.LotteryState.Status = models.LotteryStatusCompleted
	} else {
		session.LotteryState.Status = models.LotteryStatusInProgress
	}

	return winner
}

// Reset clears the lottery state and every participant's win marks, restoring
// the pre-draw state. Draw numbers are untouched.
func (e *Engine) Reset(session *models.Session) {
	session.LotteryState = models.NewLotteryState()
	for _, p := range session.Participants {
		p.IsWinner = false
		p.WinOrder = 0
	}
}

// IsCompleted reports whether every current participant has been drawn.
// Vacuously true for a zero-participant session even though its status stays
// waiting; callers must not assume status alone reflects completion.
func (e *Engine) IsCompleted(session *models.Session) bool {
	return len(session.LotteryState.Winners) >= session.ParticipantCount()
}

// Candidates returns the participants not yet drawn, in arrival order
func (e *Engine) Candidates(session *models.Session) []*models.Participant {
	var out []*models.Participant
	for _, p := range session.ParticipantsInOrder() {
		if !p.IsWinner {
			out = append(out, p)
		}
	}
	return out
}

// RemainingCount returns how many participants have not yet been drawn
func (e *Engine) RemainingCount(session *models.Session) int {
	return len(e.Candidates(session))
}

// CurrentRound returns the number of draws performed in this cycle
func (e *Engine) CurrentRound(session *models.Session) int {
	return session.LotteryState.CurrentRound
}
