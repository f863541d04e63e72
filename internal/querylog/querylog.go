// Package querylog consumes the resolver's log channel and persists
// resolver.LogEntry values to SQLite. Entries are never written one by one
// to SQLite: each is first appended to a local bbolt spool (a cheap,
// durable append), and the same loop that reads the channel drains the
// spool into a batched SQLite insert either every 5 seconds or once 64
// entries have accumulated, whichever comes first. The resolver's sends
// are non-blocking, so a burst of queries never waits on a database write.
package querylog

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jroosing/odns/internal/database"
	"github.com/jroosing/odns/internal/resolver"
)

const (
	// flushInterval bounds how long an entry can sit unflushed in the spool.
	flushInterval = 5 * time.Second
	// flushChunkSize is the batch size that triggers an early flush.
	flushChunkSize = 64
)

// Store persists query_log rows; database.DB satisfies it.
type Store interface {
	InsertQueryLogBatch(ctx context.Context, rows []database.QueryLogRow) error
}

// Consumer drains a resolver log channel into a Spool, and periodically
// flushes the spool into a Store.
type Consumer struct {
	store  Store
	spool  *Spool
	logger *slog.Logger
	in     <-chan resolver.LogEntry
}

// New creates a Consumer reading from in, staging into spool, and flushing
// batches to store.
func New(store Store, spool *Spool, in <-chan resolver.LogEntry, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{store: store, spool: spool, logger: logger, in: in}
}

// Run drains the log channel until it is closed or ctx is canceled,
// spooling every entry as it arrives and flushing the spool to the store on
// every tick of flushInterval or once flushChunkSize entries have
// accumulated. It flushes any remaining spooled entries before returning.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	// Entries left behind by a previous run (an unflushed batch at crash
	// time) are still sitting in the spool; count them in so the first
	// flush picks them up.
	pending := c.spool.Pending()

	flush := func() {
		if pending == 0 {
			return
		}
		entries, err := c.spool.Drain(pending)
		if err != nil {
			c.logger.Error("querylog: draining spool failed", "error", err)
			return
		}
		pending = 0
		if len(entries) == 0 {
			return
		}
		if err := c.store.InsertQueryLogBatch(ctx, toRows(entries)); err != nil {
			c.logger.Error("querylog: flush failed", "error", err, "count", len(entries))
		}
	}

	for {
		select {
		case <-ctx.Done():
			ctx = context.WithoutCancel(ctx)
			flush()
			return
		case <-ticker.C:
			flush()
		case entry, ok := <-c.in:
			if !ok {
				flush()
				return
			}
			if err := c.spool.Append(entry); err != nil {
				c.logger.Error("querylog: spooling entry failed", "error", err)
				continue
			}
			pending++
			if pending >= flushChunkSize {
				flush()
			}
		}
	}
}

func toRows(entries []resolver.LogEntry) []database.QueryLogRow {
	rows := make([]database.QueryLogRow, 0, len(entries))
	for _, e := range entries {
		row := database.QueryLogRow{
			Timestamp:       e.Timestamp.Unix(),
			Domain:          e.QName,
			QType:           e.QType,
			ResponseCode:    uint8(e.ResponseCode),
			ResponseDelayMs: e.ResponseDelay.Milliseconds(),
		}
		if e.ClientIP != "" {
			row.Client = sql.NullString{String: e.ClientIP, Valid: true}
		}
		if e.Source != nil {
			row.Source = sql.NullInt16{Int16: int16(*e.Source), Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}
