package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/slawatch/store"
)

const clientRequestFields = "id, uid, chat_id, message_id, status, received_ts, category, confidence, classifier_model, sla_threshold_minutes, sla_timer_started_ts, sla_timer_paused_ts, sla_breached, response_ts, response_time_minutes, response_message_id, responded_by, sla_working_minutes, created_ts, updated_ts"

func (d *DB) CreateClientRequest(ctx context.Context, create *store.ClientRequest) (*store.ClientRequest, error) {
	fields := []string{"uid", "chat_id", "message_id", "status", "received_ts", "category", "confidence", "classifier_model", "sla_threshold_minutes", "created_ts", "updated_ts"}
	args := []any{
		create.UID, create.ChatID, create.MessageID, create.Status, create.ReceivedTs,
		create.Category, create.Confidence, create.ClassifierModel,
		create.SlaThresholdMinutes, create.CreatedTs, create.UpdatedTs,
	}

	stmt := `INSERT INTO client_request (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create client_request: %w", err)
	}

	return create, nil
}

func (d *DB) GetClientRequest(ctx context.Context, id int64) (*store.ClientRequest, error) {
	find := &store.FindClientRequest{ID: &id}
	list, err := d.ListClientRequests(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListClientRequests(ctx context.Context, find *store.FindClientRequest) ([]*store.ClientRequest, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.ChatID != nil {
		where, args = append(where, "chat_id = "+placeholder(len(args)+1)), append(args, *find.ChatID)
	}
	if find.MessageID != nil {
		where, args = append(where, "message_id = "+placeholder(len(args)+1)), append(args, *find.MessageID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *find.Status)
	}
	if find.OnlyOpen {
		where = append(where, "status NOT IN ('answered', 'closed')")
	}
	if find.TimerStarted != nil {
		if *find.TimerStarted {
			where = append(where, "sla_timer_started_ts IS NOT NULL")
		} else {
			where = append(where, "sla_timer_started_ts IS NULL")
		}
	}

	// Oldest first so FIFO resolution can take the head of the list.
	query := `SELECT ` + clientRequestFields + ` FROM client_request WHERE ` + strings.Join(where, " AND ") + ` ORDER BY received_ts ASC, id ASC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET %d", *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list client_requests: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ClientRequest, 0)
	for rows.Next() {
		r, err := scanClientRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate client_requests: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateClientRequest(ctx context.Context, update *store.UpdateClientRequest) (*store.ClientRequest, error) {
	set, args := []string{}, []any{}

	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *update.Status)
	}
	if update.SlaTimerStartedTs != nil {
		set, args = append(set, "sla_timer_started_ts = "+placeholder(len(args)+1)), append(args, *update.SlaTimerStartedTs)
	}
	if update.SlaTimerPausedTs != nil {
		set, args = append(set, "sla_timer_paused_ts = "+placeholder(len(args)+1)), append(args, *update.SlaTimerPausedTs)
	}
	if update.ClearTimerPaused {
		set = append(set, "sla_timer_paused_ts = NULL")
	}
	if update.SlaBreached != nil {
		set, args = append(set, "sla_breached = "+placeholder(len(args)+1)), append(args, *update.SlaBreached)
	}
	if update.ResponseTs != nil {
		set, args = append(set, "response_ts = "+placeholder(len(args)+1)), append(args, *update.ResponseTs)
	}
	if update.ResponseTimeMinutes != nil {
		set, args = append(set, "response_time_minutes = "+placeholder(len(args)+1)), append(args, *update.ResponseTimeMinutes)
	}
	if update.ResponseMessageID != nil {
		set, args = append(set, "response_message_id = "+placeholder(len(args)+1)), append(args, *update.ResponseMessageID)
	}
	if update.RespondedBy != nil {
		set, args = append(set, "responded_by = "+placeholder(len(args)+1)), append(args, *update.RespondedBy)
	}
	if update.SlaWorkingMinutes != nil {
		set, args = append(set, "sla_working_minutes = "+placeholder(len(args)+1)), append(args, *update.SlaWorkingMinutes)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE client_request SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + clientRequestFields
	r, err := scanClientRequest(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update client_request: %w", err)
	}

	return r, nil
}

func scanClientRequest(row rowScanner) (*store.ClientRequest, error) {
	r := &store.ClientRequest{}
	if err := row.Scan(
		&r.ID, &r.UID, &r.ChatID, &r.MessageID, &r.Status, &r.ReceivedTs, &r.Category,
		&r.Confidence, &r.ClassifierModel, &r.SlaThresholdMinutes, &r.SlaTimerStartedTs,
		&r.SlaTimerPausedTs, &r.SlaBreached, &r.ResponseTs, &r.ResponseTimeMinutes,
		&r.ResponseMessageID, &r.RespondedBy, &r.SlaWorkingMinutes, &r.CreatedTs, &r.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan client_request: %w", err)
	}
	return r, nil
}
