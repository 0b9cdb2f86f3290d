package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/slawatch/store"
)

const slaAlertFields = "id, request_id, alert_type, escalation_level, minutes_elapsed, manager_telegram_id, alert_sent_ts, delivery_status, telegram_message_id, resolved_action, acknowledged_by, acknowledged_ts, resolution_notes, created_ts"

func (d *DB) CreateSlaAlert(ctx context.Context, create *store.SlaAlert) (*store.SlaAlert, error) {
	fields := []string{"request_id", "alert_type", "escalation_level", "minutes_elapsed", "manager_telegram_id", "delivery_status", "created_ts"}
	args := []any{
		create.RequestID, create.AlertType, create.EscalationLevel, create.MinutesElapsed,
		create.ManagerTelegramID, create.DeliveryStatus, create.CreatedTs,
	}

	stmt := `INSERT INTO sla_alert (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create sla_alert: %w", err)
	}

	return create, nil
}

func (d *DB) GetSlaAlert(ctx context.Context, id int64) (*store.SlaAlert, error) {
	find := &store.FindSlaAlert{ID: &id}
	list, err := d.ListSlaAlerts(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListSlaAlerts(ctx context.Context, find *store.FindSlaAlert) ([]*store.SlaAlert, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.RequestID != nil {
		where, args = append(where, "request_id = "+placeholder(len(args)+1)), append(args, *find.RequestID)
	}
	if find.AlertType != nil {
		where, args = append(where, "alert_type = "+placeholder(len(args)+1)), append(args, *find.AlertType)
	}
	if find.EscalationLevel != nil {
		where, args = append(where, "escalation_level = "+placeholder(len(args)+1)), append(args, *find.EscalationLevel)
	}
	if find.DeliveryStatus != nil {
		where, args = append(where, "delivery_status = "+placeholder(len(args)+1)), append(args, *find.DeliveryStatus)
	}
	if find.OnlyUnresolved {
		where = append(where, "resolved_action IS NULL")
	}

	query := `SELECT ` + slaAlertFields + ` FROM sla_alert WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET %d", *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sla_alerts: %w", err)
	}
	defer rows.Close()

	list := make([]*store.SlaAlert, 0)
	for rows.Next() {
		a, err := scanSlaAlert(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sla_alerts: %w", err)
	}

	return list, nil
}

// UpdateSlaAlert mutates an alert. Resolved alerts are immutable: any update
// against a row with resolved_action set reports store.ErrAlreadyExists.
func (d *DB) UpdateSlaAlert(ctx context.Context, update *store.UpdateSlaAlert) (*store.SlaAlert, error) {
	set, args := []string{}, []any{}

	if update.AlertSentTs != nil {
		set, args = append(set, "alert_sent_ts = "+placeholder(len(args)+1)), append(args, *update.AlertSentTs)
	}
	if update.DeliveryStatus != nil {
		set, args = append(set, "delivery_status = "+placeholder(len(args)+1)), append(args, *update.DeliveryStatus)
	}
	if update.TelegramMessageID != nil {
		set, args = append(set, "telegram_message_id = "+placeholder(len(args)+1)), append(args, *update.TelegramMessageID)
	}
	if update.ResolvedAction != nil {
		set, args = append(set, "resolved_action = "+placeholder(len(args)+1)), append(args, *update.ResolvedAction)
	}
	if update.AcknowledgedBy != nil {
		set, args = append(set, "acknowledged_by = "+placeholder(len(args)+1)), append(args, *update.AcknowledgedBy)
	}
	if update.AcknowledgedTs != nil {
		set, args = append(set, "acknowledged_ts = "+placeholder(len(args)+1)), append(args, *update.AcknowledgedTs)
	}
	if update.ResolutionNotes != nil {
		set, args = append(set, "resolution_notes = "+placeholder(len(args)+1)), append(args, *update.ResolutionNotes)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE sla_alert SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` AND resolved_action IS NULL RETURNING ` + slaAlertFields
	a, err := scanSlaAlert(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			// Either missing or already resolved; distinguish for the caller.
			if _, getErr := d.GetSlaAlert(ctx, update.ID); getErr == nil {
				return nil, store.ErrAlreadyExists
			}
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update sla_alert: %w", err)
	}

	return a, nil
}

func (d *DB) GetAlertStats(ctx context.Context) (*store.AlertStats, error) {
	stats := &store.AlertStats{ByLevel: make(map[int32]int64)}

	query := `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE delivery_status = 'pending'),
			COUNT(*) FILTER (WHERE delivery_status = 'delivered'),
			COUNT(*) FILTER (WHERE delivery_status = 'failed'),
			COUNT(*) FILTER (WHERE resolved_action IS NOT NULL)
		FROM sla_alert`
	if err := d.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Pending, &stats.Delivered, &stats.Failed, &stats.Resolved); err != nil {
		return nil, fmt.Errorf("failed to get alert stats: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT escalation_level, COUNT(*) FROM sla_alert GROUP BY escalation_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert level stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level int32
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert level stats: %w", err)
		}
		stats.ByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert level stats: %w", err)
	}

	return stats, nil
}

func scanSlaAlert(row rowScanner) (*store.SlaAlert, error) {
	a := &store.SlaAlert{}
	if err := row.Scan(
		&a.ID, &a.RequestID, &a.AlertType, &a.EscalationLevel, &a.MinutesElapsed,
		&a.ManagerTelegramID, &a.AlertSentTs, &a.DeliveryStatus, &a.TelegramMessageID,
		&a.ResolvedAction, &a.AcknowledgedBy, &a.AcknowledgedTs, &a.ResolutionNotes,
		&a.CreatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sla_alert: %w", err)
	}
	return a, nil
}
