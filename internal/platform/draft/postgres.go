package draft

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/carewizard/internal/platform/db"
	"github.com/jackc/pgx/v5"
)

// PostgresBackend stores drafts in the care_plan_draft table.
type PostgresBackend struct {
	q        db.Querier
	maxBytes int
}

func NewPostgresBackend(q db.Querier, maxBytes int) *PostgresBackend {
	return &PostgresBackend{q: q, maxBytes: maxBytes}
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := b.q.QueryRow(ctx, `SELECT body FROM care_plan_draft WHERE draft_key = $1`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return body, nil
}

func (b *PostgresBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := checkSize(value, b.maxBytes); err != nil {
		return err
	}
	_, err := b.q.Exec(ctx, `
		INSERT INTO care_plan_draft (draft_key, body, size_bytes, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (draft_key) DO UPDATE
		SET body = EXCLUDED.body, size_bytes = EXCLUDED.size_bytes, updated_at = EXCLUDED.updated_at`,
		key, value, len(value))
	if err != nil {
		return fmt.Errorf("put draft: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Swap(ctx context.Context, key string, old, value []byte) (bool, error) {
	if err := checkSize(value, b.maxBytes); err != nil {
		return false, err
	}
	tag, err := b.q.Exec(ctx, `
		UPDATE care_plan_draft
		SET body = $3, size_bytes = $4, updated_at = NOW()
		WHERE draft_key = $1 AND body = $2`,
		key, old, value, len(value))
	if err != nil {
		return false, fmt.Errorf("swap draft: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.q.Exec(ctx, `DELETE FROM care_plan_draft WHERE draft_key = $1`, key); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context, prefix string, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := b.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM care_plan_draft WHERE starts_with(draft_key, $1)`, prefix,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count drafts: %w", err)
	}

	rows, err := b.q.Query(ctx, `
		SELECT draft_key, size_bytes, updated_at FROM care_plan_draft
		WHERE starts_with(draft_key, $1)
		ORDER BY updated_at DESC, draft_key
		LIMIT $2 OFFSET $3`, prefix, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Size, &e.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan draft entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
