package events

import (
	"encoding/json"
	"time"

	capi "github.com/mcdev12/cafeclock/go/clients/cafe_api_client"
	"github.com/mcdev12/cafeclock/go/internal/models"
)

// Event payload types shared between the gateway, tracker and outbox packages

// Inbound session lifecycle events published by the café backend
const (
	EventTypeSessionStarted  = "SessionStarted"
	EventTypeSessionExtended = "SessionExtended"
	EventTypeSessionEnded    = "SessionEnded"
)

// Outbound countdown events published by this service
const (
	EventTypeCountdownLowTime = "CountdownLowTime"
	EventTypeCountdownExpired = "CountdownExpired"
)

// Envelope is the JetStream message body for every event
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionPayload carries a full session snapshot for SessionStarted and SessionExtended.
// Timestamps use the REST client's decoder, so ISO strings and epoch numbers both work.
type SessionPayload struct {
	SessionID        string         `json:"session_id"`
	CafeID           string         `json:"cafe_id"`
	DeviceID         string         `json:"device_id"`
	CustomerID       string         `json:"customer_id"`
	Status           string         `json:"status"`
	StartTime        capi.Timestamp `json:"start_time"`
	EstimatedEndTime capi.Timestamp `json:"estimated_end_time"`
}

// Session converts the payload into a session snapshot
func (p SessionPayload) Session() models.Session {
	return models.Session{
		ID:               p.SessionID,
		CafeID:           p.CafeID,
		DeviceID:         p.DeviceID,
		CustomerID:       p.CustomerID,
		Status:           models.SessionStatus(p.Status),
		StartTime:        p.StartTime.Time,
		EstimatedEndTime: p.EstimatedEndTime.Time,
	}
}

// SessionEndedPayload is the payload for a SessionEnded event
type SessionEndedPayload struct {
	SessionID     string    `json:"session_id"`
	EndedAt       time.Time `json:"ended_at"`
	DurationHours float64   `json:"duration_hours"`
	TotalAmount   float64   `json:"total_amount"`
}

// CountdownPayload is the payload for CountdownLowTime and CountdownExpired events
type CountdownPayload struct {
	SessionID        string    `json:"session_id"`
	CafeID           string    `json:"cafe_id,omitempty"`
	DeviceID         string    `json:"device_id,omitempty"`
	Label            string    `json:"label"`
	RemainingMs      int64     `json:"remaining_ms"`
	ProgressPercent  float64   `json:"progress_percent"`
	StartTime        time.Time `json:"start_time"`
	EstimatedEndTime time.Time `json:"estimated_end_time"`
	ObservedAt       time.Time `json:"observed_at"`
}
