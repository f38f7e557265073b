package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Config holds writer configuration.
type Config struct {
	BatchSize     int           // Default: 500
	FlushInterval time.Duration // Default: 1s
	BufferSize    int           // Default: 10000, events beyond this are dropped
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Stats contains writer counters.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64 // failed batches
	Dropped   int64 // events refused by a full buffer
	Flushes   int64
}

// row is one routed_messages record.
type row struct {
	MsgID      string
	ReceivedAt time.Time
	SourceID   int
	DestID     int
	MsgType    string
	ClOrdID    *string
	Outcome    string
	Reason     *string
	Raw        string
}
