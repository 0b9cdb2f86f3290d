package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed migration/LATEST.sql
var latestSchema string

// Migrate applies the schema. Every statement is idempotent, so this is safe
// to run on each startup.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
