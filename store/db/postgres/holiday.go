package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/slawatch/store"
)

func (d *DB) CreateHoliday(ctx context.Context, create *store.Holiday) (*store.Holiday, error) {
	stmt := `INSERT INTO holiday (chat_id, date, name, created_ts)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, create.ChatID, create.Date, create.Name, create.CreatedTs).Scan(&create.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create holiday: %w", err)
	}
	return create, nil
}

func (d *DB) ListHolidays(ctx context.Context, find *store.FindHoliday) ([]*store.Holiday, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.GlobalOnly {
		where = append(where, "chat_id IS NULL")
	} else if find.ChatID != nil {
		// Chat-level view includes the global calendar.
		where, args = append(where, "(chat_id = "+placeholder(len(args)+1)+" OR chat_id IS NULL)"), append(args, *find.ChatID)
	}
	if find.DateFrom != nil {
		where, args = append(where, "date >= "+placeholder(len(args)+1)), append(args, *find.DateFrom)
	}
	if find.DateTo != nil {
		where, args = append(where, "date <= "+placeholder(len(args)+1)), append(args, *find.DateTo)
	}

	query := `SELECT id, chat_id, date, name, created_ts FROM holiday WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Holiday, 0)
	for rows.Next() {
		h := &store.Holiday{}
		if err := rows.Scan(&h.ID, &h.ChatID, &h.Date, &h.Name, &h.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holidays: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteHoliday(ctx context.Context, delete *store.DeleteHoliday) (bool, error) {
	var result sql.Result
	var err error
	if delete.ChatID != nil {
		result, err = d.db.ExecContext(ctx, `DELETE FROM holiday WHERE chat_id = $1 AND date = $2`, *delete.ChatID, delete.Date)
	} else {
		result, err = d.db.ExecContext(ctx, `DELETE FROM holiday WHERE chat_id IS NULL AND date = $1`, delete.Date)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete holiday: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
