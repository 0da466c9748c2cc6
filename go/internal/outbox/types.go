package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// OutboxEvent is one row of countdown_outbox
type OutboxEvent struct {
	ID        uuid.UUID             `json:"id"`
	SessionID string                `json:"session_id"`
	EventType string                `json:"event_type"`
	Payload   json.RawMessage       `json:"payload"`
	Metadata  pqtype.NullRawMessage `json:"metadata"`
	CreatedAt time.Time             `json:"created_at"`
	SentAt    *time.Time            `json:"sent_at,omitempty"`
}

// Publisher delivers an outbox event to the broker
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
