package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/slawatch/store"
)

const chatMessageFields = "id, chat_id, message_id, edit_version, sender_id, sender_username, sender_name, text, is_accountant, reply_to_message_id, message_type, sent_ts, created_ts"

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	fields := []string{"chat_id", "message_id", "edit_version", "sender_id", "sender_username", "sender_name", "text", "is_accountant", "reply_to_message_id", "message_type", "sent_ts", "created_ts"}
	args := []any{
		create.ChatID, create.MessageID, create.EditVersion, create.SenderID,
		create.SenderUsername, create.SenderName, create.Text, create.IsAccountant,
		create.ReplyToMessageID, create.MessageType, create.SentTs, create.CreatedTs,
	}

	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create chat_message: %w", err)
	}

	return create, nil
}

// GetLatestChatMessage returns the highest edit_version row of a message, or
// store.ErrNotFound when the message was never logged.
func (d *DB) GetLatestChatMessage(ctx context.Context, chatID, messageID int64) (*store.ChatMessage, error) {
	query := `SELECT ` + chatMessageFields + ` FROM chat_message
		WHERE chat_id = $1 AND message_id = $2
		ORDER BY edit_version DESC
		LIMIT 1`
	m := &store.ChatMessage{}
	err := d.db.QueryRowContext(ctx, query, chatID, messageID).Scan(
		&m.ID, &m.ChatID, &m.MessageID, &m.EditVersion, &m.SenderID, &m.SenderUsername,
		&m.SenderName, &m.Text, &m.IsAccountant, &m.ReplyToMessageID, &m.MessageType,
		&m.SentTs, &m.CreatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat_message: %w", err)
	}
	return m, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ChatID != nil {
		where, args = append(where, "chat_id = "+placeholder(len(args)+1)), append(args, *find.ChatID)
	}
	if find.MessageID != nil {
		where, args = append(where, "message_id = "+placeholder(len(args)+1)), append(args, *find.MessageID)
	}
	if find.SenderID != nil {
		where, args = append(where, "sender_id = "+placeholder(len(args)+1)), append(args, *find.SenderID)
	}

	query := `SELECT ` + chatMessageFields + ` FROM chat_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY sent_ts DESC, edit_version DESC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		m := &store.ChatMessage{}
		if err := rows.Scan(
			&m.ID, &m.ChatID, &m.MessageID, &m.EditVersion, &m.SenderID, &m.SenderUsername,
			&m.SenderName, &m.Text, &m.IsAccountant, &m.ReplyToMessageID, &m.MessageType,
			&m.SentTs, &m.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat_message: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_messages: %w", err)
	}

	return list, nil
}
