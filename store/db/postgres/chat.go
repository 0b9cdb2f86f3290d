package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hrygo/slawatch/store"
)

const chatFields = "id, type, title, accountant_telegram_id, accountant_usernames, sla_threshold_minutes, monitoring_enabled, is_24x7, manager_telegram_ids, row_status, created_ts, updated_ts"

func (d *DB) CreateChat(ctx context.Context, create *store.Chat) (*store.Chat, error) {
	fields := []string{"id", "type", "title", "accountant_telegram_id", "accountant_usernames", "sla_threshold_minutes", "monitoring_enabled", "is_24x7", "manager_telegram_ids", "row_status", "created_ts", "updated_ts"}
	args := []any{
		create.ID, create.Type, create.Title, create.AccountantTelegramID,
		pq.Array(create.AccountantUsernames), create.SlaThresholdMinutes,
		create.MonitoringEnabled, create.Is24x7, pq.Int64Array(create.ManagerTelegramIDs),
		create.RowStatus, create.CreatedTs, create.UpdatedTs,
	}

	stmt := `INSERT INTO chat (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return create, nil
}

func (d *DB) GetChat(ctx context.Context, id int64) (*store.Chat, error) {
	find := &store.FindChat{ID: &id}
	list, err := d.ListChats(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListChats(ctx context.Context, find *store.FindChat) ([]*store.Chat, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Type != nil {
		where, args = append(where, "type = "+placeholder(len(args)+1)), append(args, *find.Type)
	}
	if find.MonitoringEnabled != nil {
		where, args = append(where, "monitoring_enabled = "+placeholder(len(args)+1)), append(args, *find.MonitoringEnabled)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = "+placeholder(len(args)+1)), append(args, *find.RowStatus)
	}

	query := `SELECT ` + chatFields + ` FROM chat WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateChat(ctx context.Context, update *store.UpdateChat) (*store.Chat, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Type != nil {
		set, args = append(set, "type = "+placeholder(len(args)+1)), append(args, *update.Type)
	}
	if update.AccountantTelegramID != nil {
		set, args = append(set, "accountant_telegram_id = "+placeholder(len(args)+1)), append(args, *update.AccountantTelegramID)
	}
	if update.AccountantUsernames != nil {
		set, args = append(set, "accountant_usernames = "+placeholder(len(args)+1)), append(args, pq.Array(update.AccountantUsernames))
	}
	if update.SlaThresholdMinutes != nil {
		set, args = append(set, "sla_threshold_minutes = "+placeholder(len(args)+1)), append(args, *update.SlaThresholdMinutes)
	}
	if update.MonitoringEnabled != nil {
		set, args = append(set, "monitoring_enabled = "+placeholder(len(args)+1)), append(args, *update.MonitoringEnabled)
	}
	if update.Is24x7 != nil {
		set, args = append(set, "is_24x7 = "+placeholder(len(args)+1)), append(args, *update.Is24x7)
	}
	if update.ManagerTelegramIDs != nil {
		set, args = append(set, "manager_telegram_ids = "+placeholder(len(args)+1)), append(args, pq.Int64Array(update.ManagerTelegramIDs))
	}
	if update.RowStatus != nil {
		set, args = append(set, "row_status = "+placeholder(len(args)+1)), append(args, *update.RowStatus)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE chat SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + chatFields
	chat, err := scanChat(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}

	return chat, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*store.Chat, error) {
	chat := &store.Chat{}
	var usernames pq.StringArray
	var managers pq.Int64Array
	if err := row.Scan(
		&chat.ID, &chat.Type, &chat.Title, &chat.AccountantTelegramID, &usernames,
		&chat.SlaThresholdMinutes, &chat.MonitoringEnabled, &chat.Is24x7, &managers,
		&chat.RowStatus, &chat.CreatedTs, &chat.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan chat: %w", err)
	}
	chat.AccountantUsernames = usernames
	chat.ManagerTelegramIDs = managers
	return chat, nil
}
