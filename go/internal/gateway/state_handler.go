package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/rs/zerolog/log"
)

// StateProvider exposes the countdowns currently mounted (the session tracker)
type StateProvider interface {
	Frame(sessionID string) (countdown.Frame, bool)
	Frames() []countdown.Frame
}

// ActiveSessionsResponse lists every mounted countdown
type ActiveSessionsResponse struct {
	Count    int               `json:"count"`
	Sessions []countdown.Frame `json:"sessions"`
}

// StateHandler handles HTTP requests for countdown state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetCountdown handles GET /api/sessions/{id}/countdown
func (h *StateHandler) HandleGetCountdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := extractSessionIDFromPath(r.URL.Path)
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	frame, ok := h.stateProvider.Frame(sessionID)
	if !ok {
		http.Error(w, "Session not tracked", http.StatusNotFound)
		return
	}

	writeJSON(w, frame)
}

// HandleGetActiveSessions handles GET /api/sessions/active
func (h *StateHandler) HandleGetActiveSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames := h.stateProvider.Frames()
	if frames == nil {
		frames = []countdown.Frame{}
	}
	writeJSON(w, ActiveSessionsResponse{Count: len(frames), Sessions: frames})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions/active", h.HandleGetActiveSessions)

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("path", r.URL.Path).Msg("state handler received request")

		if strings.HasSuffix(r.URL.Path, "/countdown") {
			h.HandleGetCountdown(w, r)
		} else {
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode state response")
	}
}

// extractSessionIDFromPath extracts the session ID from /api/sessions/{id}/countdown
func extractSessionIDFromPath(path string) string {
	const prefix = "/api/sessions/"
	const suffix = "/countdown"

	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}

	id := path[len(prefix) : len(path)-len(suffix)]
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
