package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/slawatch/store"
)

// GetClassificationCache returns the entry for hash if it has not expired.
func (d *DB) GetClassificationCache(ctx context.Context, hash string, nowTs int64) (*store.ClassificationCacheEntry, error) {
	query := `SELECT hash, category, confidence, model, reasoning, expires_ts, created_ts
		FROM classification_cache
		WHERE hash = $1 AND expires_ts > $2`
	e := &store.ClassificationCacheEntry{}
	err := d.db.QueryRowContext(ctx, query, hash, nowTs).Scan(
		&e.Hash, &e.Category, &e.Confidence, &e.Model, &e.Reasoning, &e.ExpiresTs, &e.CreatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get classification_cache: %w", err)
	}
	return e, nil
}

func (d *DB) UpsertClassificationCache(ctx context.Context, entry *store.ClassificationCacheEntry) error {
	stmt := `INSERT INTO classification_cache (hash, category, confidence, model, reasoning, expires_ts, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO UPDATE SET
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			model = EXCLUDED.model,
			reasoning = EXCLUDED.reasoning,
			expires_ts = EXCLUDED.expires_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		entry.Hash, entry.Category, entry.Confidence, entry.Model, entry.Reasoning,
		entry.ExpiresTs, entry.CreatedTs,
	); err != nil {
		return fmt.Errorf("failed to upsert classification_cache: %w", err)
	}
	return nil
}
