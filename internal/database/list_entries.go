package database

import (
	"context"
	"database/sql"
	"fmt"
)

// EntryKind mirrors resolver.EntryKind plus the address-family split that
// the hosts list needs at the storage layer (A and AAAA are distinct kinds,
// so one domain can hold one row of each under the (domain, kind)
// uniqueness constraint).
type EntryKind uint8

const (
	KindDeny      EntryKind = 0
	KindDenyRegex EntryKind = 1
	KindAllowA    EntryKind = 2
	KindAllowAAAA EntryKind = 3
)

// ListEntryRow is one persisted denylist/hosts-list entry added through the
// admin API. Data holds the regex pattern (DenyRegex) or the IP literal
// (AllowA/AllowAAAA); it is unused for plain Deny rows.
type ListEntryRow struct {
	ID        int64
	Timestamp int64
	Domain    string
	Kind      EntryKind
	Data      sql.NullString
	Label     sql.NullString
}

// InsertListEntry stores a new entry and returns its assigned id. A second
// insert for the same (domain, kind) pair replaces the first, mirroring the
// idempotent "add is safe to repeat" behavior the admin API relies on.
// Regex entries (empty domain) are exempt from the dedup constraint, so
// every regex add creates its own row with its own id.
func (db *DB) InsertListEntry(ctx context.Context, e ListEntryRow) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO allow_deny_list (timestamp, domain, kind, data, label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, kind) WHERE domain != '' DO UPDATE SET
			timestamp = excluded.timestamp,
			data = excluded.data,
			label = excluded.label
	`, e.Timestamp, e.Domain, e.Kind, e.Data, e.Label)
	if err != nil {
		return 0, fmt.Errorf("database: inserting list entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil || id == 0 || e.Domain != "" {
		// An upsert that takes the DO UPDATE path inserts no row, so
		// LastInsertId still names whatever the connection inserted last;
		// look the row back up by its unique key.
		var existing int64
		if qerr := db.conn.QueryRowContext(ctx,
			`SELECT id FROM allow_deny_list WHERE domain = ? AND kind = ?`, e.Domain, e.Kind,
		).Scan(&existing); qerr != nil {
			return 0, fmt.Errorf("database: resolving list entry id: %w", qerr)
		}
		return existing, nil
	}
	return id, nil
}

// DeleteListEntry removes the entry with the given id. It returns
// (ListEntryRow{}, false, nil) if no such row exists.
func (db *DB) DeleteListEntry(ctx context.Context, id int64) (ListEntryRow, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var e ListEntryRow
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, timestamp, domain, kind, data, label FROM allow_deny_list WHERE id = ?
	`, id).Scan(&e.ID, &e.Timestamp, &e.Domain, &e.Kind, &e.Data, &e.Label)
	if err == sql.ErrNoRows {
		return ListEntryRow{}, false, nil
	}
	if err != nil {
		return ListEntryRow{}, false, fmt.Errorf("database: looking up list entry %d: %w", id, err)
	}

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM allow_deny_list WHERE id = ?`, id); err != nil {
		return ListEntryRow{}, false, fmt.Errorf("database: deleting list entry %d: %w", id, err)
	}
	return e, true, nil
}

// ListAllEntries returns every stored entry, in insertion order. It is used
// at startup to replay dynamically added entries into the resolver's live
// denylist/hosts list before the server starts accepting queries, and by
// the admin API's list endpoint.
func (db *DB) ListAllEntries(ctx context.Context) ([]ListEntryRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, timestamp, domain, kind, data, label FROM allow_deny_list ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("database: listing entries: %w", err)
	}
	defer rows.Close()

	var out []ListEntryRow
	for rows.Next() {
		var e ListEntryRow
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Domain, &e.Kind, &e.Data, &e.Label); err != nil {
			return nil, fmt.Errorf("database: scanning list entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
