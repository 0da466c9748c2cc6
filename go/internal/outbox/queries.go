package outbox

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the outbox statements, bound to a DB or a transaction
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx binds the queries to a transaction, the shape sqlutil.Run expects
func WithTx(tx *sql.Tx) *Queries {
	return NewQueries(tx)
}

const insertOutboxEvent = `
INSERT INTO countdown_outbox (id, session_id, event_type, payload, metadata)
VALUES ($1, $2, $3, $4, $5)
`

type InsertOutboxEventParams struct {
	ID        uuid.UUID
	SessionID string
	EventType string
	Payload   []byte
	Metadata  pqtype.NullRawMessage
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		arg.ID,
		arg.SessionID,
		arg.EventType,
		arg.Payload,
		arg.Metadata,
	)
	return err
}

const countRecentOutbox = `
SELECT COUNT(*) FROM countdown_outbox
WHERE session_id = $1 AND event_type = $2 AND created_at > now() - interval '1 minute'
`

// CountRecent counts rows of one type recorded for a session within the last minute
func (q *Queries) CountRecent(ctx context.Context, sessionID, eventType string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, countRecentOutbox, sessionID, eventType).Scan(&count)
	return count, err
}

const fetchUnsentOutbox = `
SELECT id, session_id, event_type, payload, metadata, created_at
FROM countdown_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OutboxEvent
	for rows.Next() {
		var i OutboxEvent
		if err := rows.Scan(&i.ID, &i.SessionID, &i.EventType, &i.Payload, &i.Metadata, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const fetchOutboxByID = `
SELECT id, session_id, event_type, payload, metadata, created_at
FROM countdown_outbox
WHERE id = $1 AND sent_at IS NULL
`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (OutboxEvent, error) {
	var i OutboxEvent
	err := q.db.QueryRowContext(ctx, fetchOutboxByID, id).Scan(
		&i.ID, &i.SessionID, &i.EventType, &i.Payload, &i.Metadata, &i.CreatedAt,
	)
	return i, err
}

const markOutboxSent = `
UPDATE countdown_outbox SET sent_at = now() WHERE id = $1
`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}

const countPendingOutbox = `
SELECT COUNT(*) FROM countdown_outbox WHERE sent_at IS NULL
`

func (q *Queries) CountPendingOutbox(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, countPendingOutbox).Scan(&count)
	return count, err
}
