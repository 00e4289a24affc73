package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the events table.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id          uuid PRIMARY KEY,
	event       text NOT NULL,
	type        text NOT NULL DEFAULT '',
	data        jsonb,
	timestamp   double precision NOT NULL,
	received_at bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS events_event_received_at_idx ON events (event, received_at);
`

// Execer executes SQL. Satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the events table if it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}
