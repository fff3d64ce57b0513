package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/yshiba/kujibiki/internal/models"
)

// WebSocketHandler upgrades participant and host connections for a session.
// Identity comes from the cookies issued by the HTTP layer: participants
// carry their participant ID, hosts carry the passcode recorded at
// verification time.
type WebSocketHandler struct {
	cm *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{cm: cm}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions/{id}/ws", h.HandleParticipant)
	mux.HandleFunc("GET /sessions/{id}/host/ws", h.HandleHost)
}

// HandleParticipant handles a participant WebSocket connection. Validation
// happens after the upgrade so the client receives an error frame rather
// than a failed handshake.
func (h *WebSocketHandler) HandleParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	participantID := cookieValue(r, "participant_"+sessionID)

	ws, err := h.cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to upgrade participant connection")
		return
	}

	var (
		valid  bool
		number int
		total  int
	)
	if participantID != "" {
		_ = h.cm.registry.View(sessionID, func(s *models.Session) error {
			if p, ok := s.Participant(participantID); ok {
				valid = true
				number = p.Number
				total = s.ParticipantCount()
			}
			return nil
		})
	}
	if !valid {
		rejectConnection(ws, "invalid session or participant")
		return
	}

	conn := newConnection(h.cm, ws, sessionID, participantID, RoleParticipant)
	h.cm.register(conn)
	go conn.writePump()
	go conn.readPump()

	h.cm.SendToParticipant(sessionID, participantID, joinedMessage(number, total))
}

// HandleHost handles the host WebSocket connection. The host cookie value is
// re-verified against the session passcode at upgrade time.
func (h *WebSocketHandler) HandleHost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	passcode := cookieValue(r, "host_auth_"+sessionID)

	ws, err := h.cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to upgrade host connection")
		return
	}

	if passcode == "" || !h.cm.registry.VerifyHostPasscode(sessionID, passcode) {
		rejectConnection(ws, "not authenticated")
		return
	}

	conn := newConnection(h.cm, ws, sessionID, "", RoleHost)
	h.cm.register(conn)
	go conn.writePump()
	go conn.readPump()
}

// rejectConnection sends one error frame and closes the socket
func rejectConnection(ws *websocket.Conn, message string) {
	ws.WriteMessage(websocket.TextMessage, marshalMessage(errorMessage(message)))
	ws.Close()
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
