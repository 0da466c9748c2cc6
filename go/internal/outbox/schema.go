package outbox

import (
	"context"
	"database/sql"
	"fmt"
)

// NotifyChannel is the LISTEN/NOTIFY channel the insert trigger signals on
const NotifyChannel = "countdown_outbox_events"

const schema = `
CREATE TABLE IF NOT EXISTS countdown_outbox (
    id         UUID PRIMARY KEY,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload    JSONB NOT NULL,
    metadata   JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    sent_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS countdown_outbox_unsent_idx
    ON countdown_outbox (created_at) WHERE sent_at IS NULL;

CREATE OR REPLACE FUNCTION notify_countdown_outbox() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('` + NotifyChannel + `', NEW.id::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS countdown_outbox_notify ON countdown_outbox;
CREATE TRIGGER countdown_outbox_notify
    AFTER INSERT ON countdown_outbox
    FOR EACH ROW EXECUTE FUNCTION notify_countdown_outbox();
`

// EnsureSchema creates the outbox table and its NOTIFY trigger
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create countdown_outbox: %w", err)
	}
	return nil
}
