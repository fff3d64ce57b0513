package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/yshiba/kujibiki/internal/models"
	"github.com/yshiba/kujibiki/internal/registry"
)

// Cookies live as long as the session TTL
const cookieMaxAge = 24 * 60 * 60

// Handler exposes the registry-facing request surface: session creation,
// join, state lookup and host passcode verification. Identity is issued via
// cookies so the WebSocket layer can resolve it at upgrade time.
type Handler struct {
	registry *registry.App
}

// NewHandler creates a new HTTP API handler
func NewHandler(reg *registry.App) *Handler {
	return &Handler{registry: reg}
}

// RegisterRoutes registers the API routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("POST /sessions/{id}/join", h.JoinSession)
	mux.HandleFunc("POST /sessions/{id}/host/verify", h.VerifyHost)
}

type createSessionResponse struct {
	SessionID       string `json:"session_id"`
	HostPasscode    string `json:"host_passcode"`
	MaxParticipants int    `json:"max_participants"`
	JoinURL         string `json:"join_url"`
}

// CreateSession creates a session from a max_participants form value
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	maxParticipants, err := strconv.Atoi(r.FormValue("max_participants"))
	if err != nil {
		writeError(w, http.StatusBadRequest, registry.ErrInvalidCapacity.Error())
		return
	}

	session, err := h.registry.CreateSession(maxParticipants)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidCapacity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       session.ID,
		HostPasscode:    session.HostPasscode,
		MaxParticipants: session.MaxParticipants,
		JoinURL:         fmt.Sprintf("%s/sessions/%s", baseURL(r), session.ID),
	})
}

type sessionResponse struct {
	SessionID        string               `json:"session_id"`
	Status           models.LotteryStatus `json:"status"`
	CurrentRound     int                  `json:"current_round"`
	ParticipantCount int                  `json:"participant_count"`
	MaxParticipants  int                  `json:"max_participants"`
}

// GetSession returns a session state snapshot
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var resp sessionResponse
	err := h.registry.View(sessionID, func(s *models.Session) error {
		resp = sessionResponse{
			SessionID:        s.ID,
			Status:           s.LotteryState.Status,
			CurrentRound:     s.LotteryState.CurrentRound,
			ParticipantCount: s.ParticipantCount(),
			MaxParticipants:  s.MaxParticipants,
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type joinResponse struct {
	ParticipantID string `json:"participant_id"`
	Number        int    `json:"number"`
	Name          string `json:"name,omitempty"`
	Total         int    `json:"total"`
}

// JoinSession admits a participant and issues the identity cookie. A request
// whose cookie already names a live participant gets that participant back
// instead of a second join.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if cookie, err := r.Cookie(participantCookieName(sessionID)); err == nil {
		if existing, ok := h.registry.GetParticipant(sessionID, cookie.Value); ok {
			var total int
			_ = h.registry.View(sessionID, func(s *models.Session) error {
				total = s.ParticipantCount()
				return nil
			})
			writeJSON(w, http.StatusOK, joinResponse{
				ParticipantID: existing.ID,
				Number:        existing.Number,
				Name:          existing.Name,
				Total:         total,
			})
			return
		}
	}

	_, participant, err := h.registry.JoinSession(sessionID, r.FormValue("name"))
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, registry.ErrCapacityExceeded):
			writeError(w, http.StatusConflict, "session is full")
		default:
			log.Error().Err(err).Str("session_id", sessionID).Msg("failed to join session")
			writeError(w, http.StatusInternalServerError, "failed to join session")
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     participantCookieName(sessionID),
		Value:    participant.ID,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
	})
	// At join time the assigned number equals the participant count
	writeJSON(w, http.StatusCreated, joinResponse{
		ParticipantID: participant.ID,
		Number:        participant.Number,
		Name:          participant.Name,
		Total:         participant.Number,
	})
}

// VerifyHost checks the passcode and records the verification in a cookie
// that the WebSocket layer re-checks at upgrade time.
func (h *Handler) VerifyHost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	passcode := r.FormValue("passcode")

	if !h.registry.VerifyHostPasscode(sessionID, passcode) {
		writeError(w, http.StatusUnauthorized, "invalid session or passcode")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     hostCookieName(sessionID),
		Value:    passcode,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func participantCookieName(sessionID string) string {
	return "participant_" + sessionID
}

func hostCookieName(sessionID string) string {
	return "host_auth_" + sessionID
}

func baseURL(r *http.Request) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return proto + "://" + host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
