package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/yshiba/kujibiki/internal/lottery"
	"github.com/yshiba/kujibiki/internal/registry"
)

// Service is the realtime gateway: it owns the connection manager and the
// WebSocket routes.
type Service struct {
	cm        *ConnectionManager
	wsHandler *WebSocketHandler
}

// NewService creates a gateway service wired to the registry and draw engine
func NewService(config ConnectionConfig, reg *registry.App, engine *lottery.Engine) *Service {
	cm := NewConnectionManager(config, reg, engine)
	return &Service{
		cm:        cm,
		wsHandler: NewWebSocketHandler(cm),
	}
}

// Start runs the gateway until the context is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting gateway service")
	s.cm.Start(ctx)
	log.Info().Msg("gateway service stopped")
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
}

// Stats returns statistics about active connections
func (s *Service) Stats() map[string]any {
	return s.cm.Stats()
}

// Broadcast sends a message to everyone connected to a session
func (s *Service) Broadcast(sessionID string, msg ServerMessage) {
	s.cm.Broadcast(sessionID, msg)
}
