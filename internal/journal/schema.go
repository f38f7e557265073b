package journal

import (
	"context"
	"fmt"
)

// Schema creates the journal table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS routed_messages (
	msg_id      uuid        NOT NULL,
	received_at timestamptz NOT NULL,
	source_id   integer     NOT NULL,
	dest_id     integer     NOT NULL,
	msg_type    text        NOT NULL,
	cl_ord_id   text,
	outcome     text        NOT NULL,
	reason      text,
	raw         text        NOT NULL,
	PRIMARY KEY (msg_id, outcome)
);
CREATE INDEX IF NOT EXISTS routed_messages_dest_idx ON routed_messages (dest_id, received_at);
CREATE INDEX IF NOT EXISTS routed_messages_cl_ord_idx ON routed_messages (cl_ord_id) WHERE cl_ord_id IS NOT NULL;
`

const insertSQL = `
	INSERT INTO routed_messages (msg_id, received_at, source_id, dest_id, msg_type, cl_ord_id, outcome, reason, raw)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (msg_id, outcome) DO NOTHING
`

// EnsureSchema creates the journal table and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}
