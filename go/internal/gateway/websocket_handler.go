package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for session displays
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
	}
}

// HandleSessionConnection handles WebSocket connections for a specific session
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	// Displays identify themselves by device; anonymous is fine for kiosks
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "anonymous"
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, clientID, sessionID)
	if err != nil {
		// Upgrade already replied to the client
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("client_id", clientID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	// State sync so a reconnecting display does not wait for the next tick
	if h.stateProvider == nil {
		return
	}
	frame, ok := h.stateProvider.Frame(sessionID)
	if !ok {
		return
	}
	event, err := NewFrameEvent(frame)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to build state sync event")
		return
	}
	if err := h.connectionManager.SendTo(conn, event); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to send state sync")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/sessions", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
