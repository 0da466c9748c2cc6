package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/cafeclock/go/internal/sqlutil"
)

// ErrEventNotFound is returned when an outbox row is missing or already sent
var ErrEventNotFound = errors.New("outbox event not found or already sent")

type Repository struct {
	db      *sql.DB
	queries *Queries
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: NewQueries(db),
	}
}

// InsertOutboxEvent stores an event unless the same transition was recorded for
// the session within the last minute. It reports whether a row was written.
func (r *Repository) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) (bool, error) {
	inserted := false
	err := sqlutil.Run(ctx, r.db, WithTx, func(q *Queries) error {
		recent, err := q.CountRecent(ctx, arg.SessionID, arg.EventType)
		if err != nil {
			return fmt.Errorf("count recent %s events: %w", arg.EventType, err)
		}
		if recent > 0 {
			return nil
		}
		if err := q.InsertOutboxEvent(ctx, arg); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert %s outbox event: %w", arg.EventType, err)
	}
	return inserted, nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	events, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	event, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &event, nil
}

func (r *Repository) CountPendingOutbox(ctx context.Context) (int, error) {
	count, err := r.queries.CountPendingOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
