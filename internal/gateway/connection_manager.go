package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/yshiba/kujibiki/internal/lottery"
	"github.com/yshiba/kujibiki/internal/models"
	"github.com/yshiba/kujibiki/internal/registry"
)

// Role distinguishes the two kinds of session connections
type Role string

const (
	RoleParticipant Role = "participant"
	RoleHost        Role = "host"
)

// ConnectionManager tracks live WebSocket connections per session and routes
// inbound host commands into the draw engine. Delivery is best effort: closed
// or slow connections are dropped, never retried.
type ConnectionManager struct {
	// Participant connections keyed by session, then participant ID, plus
	// at most one host connection per session.
	mu           sync.RWMutex
	participants map[string]map[string]*Connection
	hosts        map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	registry *registry.App
	engine   *lottery.Engine

	// Outbound frames, drained by a single Start goroutine so sends from
	// one draw stay in causal order.
	outboundCh chan outbound
}

// Connection represents one WebSocket connection to a client
type Connection struct {
	ID            string
	SessionID     string
	ParticipantID string
	Role          Role
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time

	// sendMu guards closed so nothing writes to Send after it is closed.
	sendMu sync.Mutex
	closed bool
}

// markClosed closes the send channel exactly once
func (c *Connection) markClosed() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

type deliveryKind int

const (
	deliverBroadcast deliveryKind = iota
	deliverParticipant
	deliverHost
)

type outbound struct {
	kind          deliveryKind
	sessionID     string
	participantID string
	data          []byte
}

// NewConnectionManager creates a connection manager wired to the registry and
// draw engine.
func NewConnectionManager(config ConnectionConfig, reg *registry.App, engine *lottery.Engine) *ConnectionManager {
	return &ConnectionManager{
		participants: make(map[string]map[string]*Connection),
		hosts:        make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		registry:   reg,
		engine:     engine,
		outboundCh: make(chan outbound, 1000),
	}
}

// Start begins processing outbound frames until the context is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.outboundCh:
			cm.handleDelivery(message)
		}
	}
}

// Broadcast delivers a message to every open participant connection and the
// host connection for the session.
func (cm *ConnectionManager) Broadcast(sessionID string, msg ServerMessage) {
	cm.enqueue(outbound{kind: deliverBroadcast, sessionID: sessionID, data: marshalMessage(msg)})
}

// SendToParticipant delivers a message to a single participant connection
func (cm *ConnectionManager) SendToParticipant(sessionID, participantID string, msg ServerMessage) {
	cm.enqueue(outbound{
		kind:          deliverParticipant,
		sessionID:     sessionID,
		participantID: participantID,
		data:          marshalMessage(msg),
	})
}

// SendToHost delivers a message to the session's host connection
func (cm *ConnectionManager) SendToHost(sessionID string, msg ServerMessage) {
	cm.enqueue(outbound{kind: deliverHost, sessionID: sessionID, data: marshalMessage(msg)})
}

func (cm *ConnectionManager) enqueue(message outbound) {
	select {
	case cm.outboundCh <- message:
	default:
		log.Warn().Str("session_id", message.sessionID).Msg("outbound channel full, dropping message")
	}
}

func marshalMessage(msg ServerMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		// Frame payloads are plain structs; this cannot fail at runtime.
		panic("gateway: failed to marshal server message: " + err.Error())
	}
	return data
}

// handleDelivery fans one frame out to its target connections
func (cm *ConnectionManager) handleDelivery(message outbound) {
	cm.mu.RLock()
	var targets []*Connection
	switch message.kind {
	case deliverBroadcast:
		for _, conn := range cm.participants[message.sessionID] {
			targets = append(targets, conn)
		}
		if host, ok := cm.hosts[message.sessionID]; ok {
			targets = append(targets, host)
		}
	case deliverParticipant:
		if conn, ok := cm.participants[message.sessionID][message.participantID]; ok {
			targets = append(targets, conn)
		}
	case deliverHost:
		if host, ok := cm.hosts[message.sessionID]; ok {
			targets = append(targets, host)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.send(conn, message.data)
	}
}

// send writes a frame to one connection's buffer, dropping the connection if
// its buffer is full.
func (cm *ConnectionManager) send(conn *Connection, data []byte) {
	conn.sendMu.Lock()
	if conn.closed {
		conn.sendMu.Unlock()
		return
	}
	select {
	case conn.Send <- data:
		conn.sendMu.Unlock()
	default:
		conn.sendMu.Unlock()
		log.Warn().
			Str("connection_id", conn.ID).
			Str("session_id", conn.SessionID).
			Msg("connection send buffer full, closing connection")
		cm.unregister(conn)
		conn.Conn.Close()
	}
}

// sendDirect delivers a reply to the originating connection only, bypassing
// the outbound queue.
func (cm *ConnectionManager) sendDirect(conn *Connection, msg ServerMessage) {
	cm.send(conn, marshalMessage(msg))
}

// register adds a connection to its session table. A duplicate participant
// connection or a second host connection replaces the previous one, which is
// closed.
func (cm *ConnectionManager) register(conn *Connection) {
	var replaced *Connection

	cm.mu.Lock()
	switch conn.Role {
	case RoleHost:
		replaced = cm.hosts[conn.SessionID]
		cm.hosts[conn.SessionID] = conn
	default:
		if cm.participants[conn.SessionID] == nil {
			cm.participants[conn.SessionID] = make(map[string]*Connection)
		}
		replaced = cm.participants[conn.SessionID][conn.ParticipantID]
		cm.participants[conn.SessionID][conn.ParticipantID] = conn
	}
	cm.mu.Unlock()

	if replaced != nil {
		replaced.markClosed()
		replaced.Conn.Close()
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Str("role", string(conn.Role)).
		Msg("connection registered")
}

// unregister removes a connection from its table. Idempotent, safe to call
// from both pumps.
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	switch conn.Role {
	case RoleHost:
		if cm.hosts[conn.SessionID] != conn {
			return
		}
		delete(cm.hosts, conn.SessionID)
	default:
		connections := cm.participants[conn.SessionID]
		if connections[conn.ParticipantID] != conn {
			return
		}
		delete(connections, conn.ParticipantID)
		if len(connections) == 0 {
			delete(cm.participants, conn.SessionID)
		}
	}
	conn.markClosed()

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Str("role", string(conn.Role)).
		Msg("connection unregistered")
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalParticipants := 0
	for _, connections := range cm.participants {
		totalParticipants += len(connections)
	}

	return map[string]any{
		"participant_connections": totalParticipants,
		"host_connections":        len(cm.hosts),
		"active_sessions":         len(cm.participants),
	}
}

func newConnection(cm *ConnectionManager, ws *websocket.Conn, sessionID, participantID string, role Role) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		Conn:          ws,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. Clients
// that never ping are left connected; there is no server-side idle timeout.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Manager.handleClientMessage(c, message)
	}
}

// handleClientMessage routes one inbound frame. Unparseable frames get an
// error reply and the connection stays open.
func (cm *ConnectionManager) handleClientMessage(c *Connection, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		cm.sendDirect(c, errorMessage("invalid message format"))
		return
	}

	switch msg.Type {
	case TypePing:
		cm.sendDirect(c, pongMessage())
	case TypeDraw:
		if c.Role == RoleHost {
			cm.handleDraw(c)
		}
	case TypeReset:
		if c.Role == RoleHost {
			cm.handleReset(c)
		}
	}
}

// handleDraw performs one draw under the session lock and fans the outcome
// out: public result first, private won notice second, completed last.
func (cm *ConnectionManager) handleDraw(c *Connection) {
	var (
		winner    models.Participant
		drew      bool
		round     int
		completed bool
	)
	err := cm.registry.Update(c.SessionID, func(s *models.Session) error {
		w := cm.engine.DrawWinner(s)
		if w == nil {
			return nil
		}
		drew = true
		winner = *w
		round = s.LotteryState.CurrentRound
		completed = cm.engine.IsCompleted(s)
		return nil
	})
	if err != nil {
		cm.sendDirect(c, errorMessage("session not found"))
		return
	}
	if !drew {
		return
	}

	log.Info().
		Str("session_id", c.SessionID).
		Str("winner_id", winner.ID).
		Int("round", round).
		Bool("completed", completed).
		Msg("lottery draw")

	cm.Broadcast(c.SessionID, resultMessage(winner, round))
	cm.SendToParticipant(c.SessionID, winner.ID, wonMessage(winner.WinOrder))
	if completed {
		cm.Broadcast(c.SessionID, completedMessage())
	}
}

// handleReset clears the lottery state and notifies everyone
func (cm *ConnectionManager) handleReset(c *Connection) {
	err := cm.registry.Update(c.SessionID, func(s *models.Session) error {
		cm.engine.Reset(s)
		return nil
	})
	if err != nil {
		cm.sendDirect(c, errorMessage("session not found"))
		return
	}

	log.Info().Str("session_id", c.SessionID).Msg("lottery reset")
	cm.Broadcast(c.SessionID, resetMessage())
}
