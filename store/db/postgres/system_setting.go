package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrygo/slawatch/store"
)

func (d *DB) GetSystemValue(ctx context.Context, name string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM system_setting WHERE name = $1`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get system_setting %s: %w", name, err)
	}
	return value, nil
}

func (d *DB) UpsertSystemValue(ctx context.Context, name, value string) error {
	stmt := `INSERT INTO system_setting (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`
	if _, err := d.db.ExecContext(ctx, stmt, name, value); err != nil {
		return fmt.Errorf("failed to upsert system_setting %s: %w", name, err)
	}
	return nil
}
