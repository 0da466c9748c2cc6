package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/events"
)

// CountdownEvent represents the base structure for all events pushed to displays
type CountdownEvent struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Session the event belongs to
	Type      EventType       `json:"type"`       // Event type
	Timestamp time.Time       `json:"timestamp"`  // Event creation time
	Data      json.RawMessage `json:"data"`       // Event-specific payload
}

// EventType represents the type of display event
type EventType string

const (
	EventTypeCountdownTick    EventType = "CountdownTick"
	EventTypeCountdownLowTime EventType = events.EventTypeCountdownLowTime
	EventTypeCountdownExpired EventType = events.EventTypeCountdownExpired
	EventTypeSessionEnded     EventType = events.EventTypeSessionEnded
)

// eventTypeForFrame picks the display event type for a frame
func eventTypeForFrame(frame countdown.Frame) EventType {
	switch frame.Transition {
	case countdown.TransitionLowTime:
		return EventTypeCountdownLowTime
	case countdown.TransitionExpired:
		return EventTypeCountdownExpired
	default:
		return EventTypeCountdownTick
	}
}

// NewFrameEvent wraps a countdown frame for the wire
func NewFrameEvent(frame countdown.Frame) (*CountdownEvent, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}

	return &CountdownEvent{
		ID:        uuid.New().String(),
		SessionID: frame.SessionID,
		Type:      eventTypeForFrame(frame),
		Timestamp: frame.TickedAt,
		Data:      data,
	}, nil
}

// NewSessionEndedEvent tells displays to tear down the countdown for a session
func NewSessionEndedEvent(sessionID string, at time.Time) *CountdownEvent {
	data, _ := json.Marshal(map[string]string{"session_id": sessionID})
	return &CountdownEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      EventTypeSessionEnded,
		Timestamp: at,
		Data:      data,
	}
}
