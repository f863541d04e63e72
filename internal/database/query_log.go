package database

import (
	"context"
	"database/sql"
	"fmt"
)

// QueryLogRow is one persisted query-log record.
type QueryLogRow struct {
	ID              int64
	Timestamp       int64 // unix seconds
	Domain          string
	QType           uint16
	Client          sql.NullString
	ResponseCode    uint8
	ResponseDelayMs int64
	Source          sql.NullInt16
}

// InsertQueryLogBatch inserts rows in a single transaction. It is the only
// write path the query-log consumer uses, batching many LogEntry values
// into one round trip per flush.
func (db *DB) InsertQueryLogBatch(ctx context.Context, rows []QueryLogRow) error {
	if len(rows) == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: beginning query log batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO query_log (timestamp, domain, qtype, client, response_code, response_delay_ms, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("database: preparing query log insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Timestamp, r.Domain, r.QType, r.Client, r.ResponseCode, r.ResponseDelayMs, r.Source); err != nil {
			return fmt.Errorf("database: inserting query log row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("database: committing query log batch: %w", err)
	}
	return nil
}

// QueryLogFilter constrains ListQueryLogs.
type QueryLogFilter struct {
	Limit         int
	Offset        int
	FromTimestamp int64 // 0 means unbounded
	Ascending     bool  // false (default) sorts newest first
}

// ListQueryLogs returns rows matching filter, most recent first unless
// Ascending is set.
func (db *DB) ListQueryLogs(ctx context.Context, filter QueryLogFilter) ([]QueryLogRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, timestamp, domain, qtype, client, response_code, response_delay_ms, source
		FROM query_log
		WHERE timestamp >= ?
		ORDER BY timestamp %s
		LIMIT ? OFFSET ?
	`, order)

	rows, err := db.conn.QueryContext(ctx, query, filter.FromTimestamp, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("database: listing query logs: %w", err)
	}
	defer rows.Close()

	var out []QueryLogRow
	for rows.Next() {
		var r QueryLogRow
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Domain, &r.QType, &r.Client, &r.ResponseCode, &r.ResponseDelayMs, &r.Source); err != nil {
			return nil, fmt.Errorf("database: scanning query log row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountQueryLogs returns the total number of persisted query-log rows.
func (db *DB) CountQueryLogs(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("database: counting query logs: %w", err)
	}
	return n, nil
}
