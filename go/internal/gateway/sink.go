package gateway

import (
	"time"

	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/rs/zerolog/log"
)

// PublishFrame broadcasts a tracker frame to the displays watching its session
func (cm *ConnectionManager) PublishFrame(frame countdown.Frame) {
	event, err := NewFrameEvent(frame)
	if err != nil {
		log.Error().Err(err).Str("session_id", frame.SessionID).Msg("failed to build frame event")
		return
	}
	cm.BroadcastToSession(frame.SessionID, event)
}

// PublishSessionEnded tells displays a session is no longer tracked
func (cm *ConnectionManager) PublishSessionEnded(sessionID string) {
	cm.BroadcastToSession(sessionID, NewSessionEndedEvent(sessionID, time.Now().UTC()))
}
