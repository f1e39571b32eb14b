package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS care_plan_draft (
    draft_key  TEXT PRIMARY KEY,
    body       BLOB NOT NULL,
    size_bytes INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// SQLiteBackend keeps drafts in a local SQLite file for single-node
// deployments.
type SQLiteBackend struct {
	sqlDB    *sql.DB
	maxBytes int
}

// OpenSQLite opens (creating if needed) the draft database at path. The
// special path ":memory:" opens a private in-memory database.
func OpenSQLite(path string, maxBytes int) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite draft path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create draft table: %w", err)
	}
	return &SQLiteBackend{sqlDB: sqlDB, maxBytes: maxBytes}, nil
}

func (b *SQLiteBackend) Close() error {
	if b == nil || b.sqlDB == nil {
		return nil
	}
	return b.sqlDB.Close()
}

// Ping is used by the health endpoint.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.sqlDB.PingContext(ctx)
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := b.sqlDB.QueryRowContext(ctx, `SELECT body FROM care_plan_draft WHERE draft_key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return body, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := checkSize(value, b.maxBytes); err != nil {
		return err
	}
	_, err := b.sqlDB.ExecContext(ctx, `
		INSERT INTO care_plan_draft (draft_key, body, size_bytes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(draft_key) DO UPDATE SET
		  body = excluded.body,
		  size_bytes = excluded.size_bytes,
		  updated_at = excluded.updated_at`,
		key, value, len(value), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put draft: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Swap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if err := checkSize(value, b.maxBytes); err != nil {
		return false, err
	}
	res, err := b.sqlDB.ExecContext(ctx, `
		UPDATE care_plan_draft
		SET body = ?, size_bytes = ?, updated_at = ?
		WHERE draft_key = ? AND body = ?`,
		value, len(value), time.Now().UTC().UnixMilli(), key, old)
	if err != nil {
		return false, fmt.Errorf("swap draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap draft: %w", err)
	}
	return n == 1, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.sqlDB.ExecContext(ctx, `DELETE FROM care_plan_draft WHERE draft_key = ?`, key); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) List(ctx context.Context, prefix string, limit, offset int) ([]Entry, int, error) {
	if limit <= 0 {
		limit = -1
	}
	var total int
	if err := b.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM care_plan_draft WHERE substr(draft_key, 1, length(?1)) = ?1`, prefix,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count drafts: %w", err)
	}

	rows, err := b.sqlDB.QueryContext(ctx, `
		SELECT draft_key, size_bytes, updated_at FROM care_plan_draft
		WHERE substr(draft_key, 1, length(?1)) = ?1
		ORDER BY updated_at DESC, draft_key
		LIMIT ?2 OFFSET ?3`, prefix, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			millis int64
		)
		if err := rows.Scan(&e.Key, &e.Size, &millis); err != nil {
			return nil, 0, fmt.Errorf("scan draft entry: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(millis).UTC()
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
