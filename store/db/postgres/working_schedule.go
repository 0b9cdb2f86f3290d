package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/slawatch/store"
)

const scheduleFields = "id, chat_id, weekday, start_time, end_time, timezone, created_ts, updated_ts"

func (d *DB) ListWorkingSchedules(ctx context.Context, find *store.FindWorkingSchedule) ([]*store.WorkingSchedule, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ChatID != nil {
		where, args = append(where, "chat_id = "+placeholder(len(args)+1)), append(args, *find.ChatID)
	}
	if find.Weekday != nil {
		where, args = append(where, "weekday = "+placeholder(len(args)+1)), append(args, *find.Weekday)
	}

	query := `SELECT ` + scheduleFields + ` FROM working_schedule WHERE ` + strings.Join(where, " AND ") + ` ORDER BY weekday ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list working schedules: %w", err)
	}
	defer rows.Close()

	list := make([]*store.WorkingSchedule, 0)
	for rows.Next() {
		s := &store.WorkingSchedule{}
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Weekday, &s.StartTime, &s.EndTime, &s.Timezone, &s.CreatedTs, &s.UpdatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan working schedule: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate working schedules: %w", err)
	}

	return list, nil
}

func (d *DB) ReplaceWorkingSchedule(ctx context.Context, replace *store.ReplaceWorkingSchedule) error {
	now := time.Now().Unix()
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM working_schedule WHERE chat_id = $1`, replace.ChatID); err != nil {
			return fmt.Errorf("failed to clear working schedule: %w", err)
		}
		for _, row := range replace.Rows {
			stmt := `INSERT INTO working_schedule (chat_id, weekday, start_time, end_time, timezone, created_ts, updated_ts)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`
			if _, err := tx.ExecContext(ctx, stmt, replace.ChatID, row.Weekday, row.StartTime, row.EndTime, row.Timezone, now, now); err != nil {
				if isUniqueViolation(err) {
					return store.ErrAlreadyExists
				}
				return fmt.Errorf("failed to insert working schedule row: %w", err)
			}
		}
		return nil
	})
}
