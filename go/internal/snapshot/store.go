package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/cafeclock/go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS countdown_sessions (
    session_id         TEXT PRIMARY KEY,
    cafe_id            TEXT NOT NULL DEFAULT '',
    device_id          TEXT NOT NULL DEFAULT '',
    customer_id        TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    start_time         TIMESTAMPTZ,
    estimated_end_time TIMESTAMPTZ,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DB is the part of pgxpool.Pool the store uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store keeps the windows of mounted countdowns in Postgres so a restarted
// process can resume them before the first poll completes.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool and makes sure the table exists
func Open(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect snapshot pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping snapshot pool: %w", err)
	}

	store := NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create countdown_sessions: %w", err)
	}
	return nil
}

// Save upserts the session window
func (s *Store) Save(ctx context.Context, session models.Session) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO countdown_sessions (
          session_id, cafe_id, device_id, customer_id, status,
          start_time, estimated_end_time, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (session_id) DO UPDATE SET
          cafe_id            = EXCLUDED.cafe_id,
          device_id          = EXCLUDED.device_id,
          customer_id        = EXCLUDED.customer_id,
          status             = EXCLUDED.status,
          start_time         = EXCLUDED.start_time,
          estimated_end_time = EXCLUDED.estimated_end_time,
          updated_at         = EXCLUDED.updated_at
    `,
		session.ID, session.CafeID, session.DeviceID, session.CustomerID, string(session.Status),
		nullTime(session.StartTime), nullTime(session.EstimatedEndTime), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM countdown_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// List returns every stored window, oldest end first
func (s *Store) List(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.Query(ctx, `
        SELECT session_id, cafe_id, device_id, customer_id, status, start_time, estimated_end_time
        FROM countdown_sessions
        ORDER BY estimated_end_time ASC NULLS FIRST, session_id
    `)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			session   models.Session
			status    string
			start     *time.Time
			estimated *time.Time
		)
		if err := rows.Scan(&session.ID, &session.CafeID, &session.DeviceID, &session.CustomerID, &status, &start, &estimated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Status = models.SessionStatus(status)
		if start != nil {
			session.StartTime = start.UTC()
		}
		if estimated != nil {
			session.EstimatedEndTime = estimated.UTC()
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// nullTime keeps zero windows as NULL so they restore as zero, i.e. expired
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
