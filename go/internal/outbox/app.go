package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"github.com/mcdev12/cafeclock/go/internal/events"
	"github.com/mcdev12/cafeclock/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// ErrNotATransition is returned when asked to record a plain tick
var ErrNotATransition = errors.New("frame carries no transition")

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) (bool, error)
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
}

// SessionLookup resolves the session behind a frame for richer payloads
type SessionLookup func(sessionID string) (models.Session, bool)

// App handles outbox business logic
type App struct {
	repo    OutboxRepository
	lookup  SessionLookup
	newUUID func() uuid.UUID
}

// NewApp creates a new outbox App
func NewApp(repo OutboxRepository) *App {
	return &App{
		repo:    repo,
		newUUID: uuid.New,
	}
}

// SetSessionLookup attaches the tracker's session index once it exists
func (a *App) SetSessionLookup(lookup SessionLookup) {
	a.lookup = lookup
}

// eventTypeFor maps a countdown transition onto its outbox event type
func eventTypeFor(t countdown.Transition) (string, error) {
	switch t {
	case countdown.TransitionLowTime:
		return events.EventTypeCountdownLowTime, nil
	case countdown.TransitionExpired:
		return events.EventTypeCountdownExpired, nil
	default:
		return "", ErrNotATransition
	}
}

// RecordTransition inserts a CountdownLowTime or CountdownExpired event for a frame
func (a *App) RecordTransition(ctx context.Context, frame countdown.Frame) error {
	if frame.SessionID == "" {
		return fmt.Errorf("invalid countdown frame: session id is required")
	}
	eventType, err := eventTypeFor(frame.Transition)
	if err != nil {
		return fmt.Errorf("invalid countdown frame for %s: %w", frame.SessionID, err)
	}

	payload := events.CountdownPayload{
		SessionID:        frame.SessionID,
		Label:            frame.Label,
		RemainingMs:      frame.RemainingMs,
		ProgressPercent:  frame.ProgressPercent,
		StartTime:        frame.StartTime,
		EstimatedEndTime: frame.EstimatedEndTime,
		ObservedAt:       frame.TickedAt,
	}

	metadata := pqtype.NullRawMessage{}
	if a.lookup != nil {
		if session, ok := a.lookup(frame.SessionID); ok {
			payload.CafeID = session.CafeID
			payload.DeviceID = session.DeviceID

			raw, err := json.Marshal(map[string]string{
				"cafe_id":     session.CafeID,
				"device_id":   session.DeviceID,
				"customer_id": session.CustomerID,
				"status":      string(session.Status),
			})
			if err != nil {
				return fmt.Errorf("marshal %s metadata: %w", eventType, err)
			}
			metadata = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if err := a.validateEventPayload(data); err != nil {
		return fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	inserted, err := a.repo.InsertOutboxEvent(ctx, InsertOutboxEventParams{
		ID:        a.newUUID(),
		SessionID: frame.SessionID,
		EventType: eventType,
		Payload:   data,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", eventType, err)
	}

	if !inserted {
		log.Debug().
			Str("session_id", frame.SessionID).
			Str("event_type", eventType).
			Msg("duplicate outbox event skipped")
		return nil
	}

	log.Info().
		Str("session_id", frame.SessionID).
		Str("event_type", eventType).
		Msg("outbox event inserted")

	return nil
}

// FetchUnsentEvents fetches unsent outbox events
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	batch, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(batch) > 0 {
		log.Debug().
			Int("count", len(batch)).
			Msg("fetched unsent outbox events")
	}

	return batch, nil
}

// MarkEventSent marks an outbox event as sent
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")

	return nil
}

// ProcessUnsentEvents publishes one batch of unsent events through processor
func (a *App) ProcessUnsentEvents(ctx context.Context, batchSize int32, processor func(event OutboxEvent) error) (int, error) {
	batch, err := a.FetchUnsentEvents(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	processedCount := 0
	errorCount := 0

	for _, event := range batch {
		if err := processor(event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to process event")
			errorCount++
			continue
		}

		if err := a.MarkEventSent(ctx, event.ID); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Msg("failed to mark event as sent after processing")
			errorCount++
			continue
		}

		processedCount++
	}

	if processedCount > 0 || errorCount > 0 {
		log.Info().
			Int("processed", processedCount).
			Int("errors", errorCount).
			Int("total", len(batch)).
			Msg("processed unsent events batch")
	}

	return processedCount, nil
}

// validateEventPayload validates that the event payload is not empty
func (a *App) validateEventPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}
	return nil
}
