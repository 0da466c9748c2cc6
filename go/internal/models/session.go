package models

import (
	"time"
)

// SessionStatus mirrors the backend's session lifecycle states
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusExtended  SessionStatus = "EXTENDED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// IsRunning reports whether a session with this status still has a live countdown.
// The backend flags topped-up sessions as EXTENDED; they keep counting down.
func (s SessionStatus) IsRunning() bool {
	return s == SessionStatusActive || s == SessionStatusExtended
}

// Session is a read-only snapshot of a billed device-usage period.
// The backend owns and mutates it; EstimatedEndTime may move on top-up.
type Session struct {
	ID               string        `json:"id"`
	CafeID           string        `json:"cafe_id"`
	DeviceID         string        `json:"device_id"`
	CustomerID       string        `json:"customer_id"`
	Status           SessionStatus `json:"status"`
	StartTime        time.Time     `json:"start_time"`
	EstimatedEndTime time.Time     `json:"estimated_end_time"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
}

// IsRunning reports whether the session should have a mounted countdown
func (s Session) IsRunning() bool {
	return s.Status.IsRunning()
}
