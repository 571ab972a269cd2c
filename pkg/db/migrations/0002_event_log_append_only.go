package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upEventLogAppendOnly, downEventLogAppendOnly)
}

// The audit trail is only ever appended to.
func upEventLogAppendOnly(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE OR REPLACE FUNCTION event_logs_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'event_logs is append-only';
END;
$$ LANGUAGE plpgsql;

CREATE TRIGGER event_logs_no_update
	BEFORE UPDATE OR DELETE ON event_logs
	FOR EACH ROW EXECUTE FUNCTION event_logs_append_only();

CREATE TRIGGER event_logs_no_truncate
	BEFORE TRUNCATE ON event_logs
	FOR EACH STATEMENT EXECUTE FUNCTION event_logs_append_only();
`)
	return err
}

func downEventLogAppendOnly(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
DROP TRIGGER IF EXISTS event_logs_no_truncate ON event_logs;
DROP TRIGGER IF EXISTS event_logs_no_update ON event_logs;
DROP FUNCTION IF EXISTS event_logs_append_only();
`)
	return err
}
