// Package journal records routing outcomes to PostgreSQL.
//
// The writer is append-only: every delivered, rejected, queued or replayed
// message becomes one row in routed_messages. Rows are keyed by
// (msg_id, outcome) and duplicate inserts are ignored. The journal is an
// audit trail, not a store the router reads back from.
package journal
