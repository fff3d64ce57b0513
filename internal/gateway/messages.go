package gateway

import (
	"github.com/yshiba/kujibiki/internal/models"
)

// MessageType identifies a realtime frame
type MessageType string

// Inbound message types
const (
	TypeDraw  MessageType = "lottery:draw"
	TypeReset MessageType = "lottery:reset"
	TypePing  MessageType = "ping"
)

// Outbound message types
const (
	TypeJoined    MessageType = "participant:joined"
	TypeResult    MessageType = "lottery:result"
	TypeWon       MessageType = "lottery:won"
	TypeCompleted MessageType = "lottery:completed"
	TypeResetDone MessageType = "lottery:reset"
	TypeError     MessageType = "error"
	TypePong      MessageType = "pong"
)

// ClientMessage is one inbound JSON frame
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// ServerMessage is one outbound JSON frame
type ServerMessage struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// JoinedPayload is sent to a participant on connect
type JoinedPayload struct {
	Number int `json:"number"`
	Total  int `json:"total"`
}

// ResultPayload announces a draw outcome. Winner is a copy taken under the
// session lock so later mutations cannot race with delivery.
type ResultPayload struct {
	Winner models.Participant `json:"winner"`
	Round  int                `json:"round"`
}

// WonPayload is the private notice to the drawn participant
type WonPayload struct {
	Order int `json:"order"`
}

// ErrorPayload carries a user-facing error message
type ErrorPayload struct {
	Message string `json:"message"`
}

func joinedMessage(number, total int) ServerMessage {
	return ServerMessage{Type: TypeJoined, Data: JoinedPayload{Number: number, Total: total}}
}

func resultMessage(winner models.Participant, round int) ServerMessage {
	return ServerMessage{Type: TypeResult, Data: ResultPayload{Winner: winner, Round: round}}
}

func wonMessage(order int) ServerMessage {
	return ServerMessage{Type: TypeWon, Data: WonPayload{Order: order}}
}

func completedMessage() ServerMessage {
	return ServerMessage{Type: TypeCompleted}
}

func resetMessage() ServerMessage {
	return ServerMessage{Type: TypeResetDone}
}

func errorMessage(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Data: ErrorPayload{Message: message}}
}

func pongMessage() ServerMessage {
	return ServerMessage{Type: TypePong}
}
