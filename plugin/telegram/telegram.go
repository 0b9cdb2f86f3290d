// Package telegram implements the Telegram transport: outbound HTML messages
// with inline keyboards, webhook management, and inbound update parsing.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is one inline keyboard button. Exactly one of CallbackData and URL
// should be set.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// EventKind discriminates inbound updates.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventEditedMessage EventKind = "edited_message"
	EventCallback      EventKind = "callback"
)

// Event is a transport-neutral view of an inbound update. The engine never
// touches SDK types beyond this package.
type Event struct {
	Kind             EventKind
	ChatID           int64
	ChatType         string
	ChatTitle        string
	MessageID        int64
	SenderID         int64
	SenderUsername   string
	SenderName       string
	Text             string
	ReplyToMessageID *int64
	SentTs           int64

	// Callback fields, set when Kind == EventCallback.
	CallbackID   string
	CallbackData string
}

// Channel is the outbound half of the transport.
type Channel struct {
	bot *tgbotapi.BotAPI
}

func NewChannel(botToken string) (*Channel, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Channel{bot: bot}, nil
}

// BotUsername returns the authorized bot's username.
func (c *Channel) BotUsername() string {
	return c.bot.Self.UserName
}

// SendHTML sends an HTML-formatted message to a chat or user id and returns
// the sent message id.
func (c *Channel) SendHTML(_ context.Context, chatID int64, text string, keyboard Keyboard) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup := keyboardMarkup(keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return int64(sent.MessageID), nil
}

// AnswerCallback acknowledges an inline keyboard tap with a toast text.
func (c *Channel) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// SetWebhook registers the webhook URL with the shared secret token.
func (c *Channel) SetWebhook(_ context.Context, webhookURL, secret string, dropPendingUpdates bool) error {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	_, err = c.bot.Request(tgbotapi.WebhookConfig{
		URL:                parsed,
		SecretToken:        secret,
		DropPendingUpdates: dropPendingUpdates,
		AllowedUpdates:     []string{"message", "edited_message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook registration.
func (c *Channel) DeleteWebhook(context.Context) error {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

func keyboardMarkup(keyboard Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			switch {
			case b.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			default:
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
			}
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// ParseUpdate maps a raw update to an Event. Returns nil for update kinds the
// engine does not consume (inline queries, channel posts, and so on).
func ParseUpdate(update *tgbotapi.Update) *Event {
	switch {
	case update.Message != nil:
		return messageEvent(EventMessage, update.Message)
	case update.EditedMessage != nil:
		return messageEvent(EventEditedMessage, update.EditedMessage)
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		event := &Event{
			Kind:         EventCallback,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.From != nil {
			event.SenderID = cq.From.ID
			event.SenderUsername = cq.From.UserName
			event.SenderName = displayName(cq.From)
		}
		if cq.Message != nil {
			event.ChatID = cq.Message.Chat.ID
			event.ChatType = cq.Message.Chat.Type
			event.ChatTitle = cq.Message.Chat.Title
			event.MessageID = int64(cq.Message.MessageID)
		}
		return event
	default:
		return nil
	}
}

func messageEvent(kind EventKind, msg *tgbotapi.Message) *Event {
	event := &Event{
		Kind:      kind,
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		ChatTitle: msg.Chat.Title,
		MessageID: int64(msg.MessageID),
		Text:      msg.Text,
		SentTs:    int64(msg.Date),
	}
	if kind == EventEditedMessage && msg.EditDate > 0 {
		event.SentTs = int64(msg.EditDate)
	}
	if msg.From != nil {
		event.SenderID = msg.From.ID
		event.SenderUsername = msg.From.UserName
		event.SenderName = displayName(msg.From)
	}
	if msg.ReplyToMessage != nil {
		replyID := int64(msg.ReplyToMessage.MessageID)
		event.ReplyToMessageID = &replyID
	}
	if event.Text == "" {
		event.Text = msg.Caption
	}
	return event
}

func displayName(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = strconv.FormatInt(user.ID, 10)
	}
	return name
}

// ChatLink returns a deep link to a group chat usable in alert keyboards.
func ChatLink(chatID int64) string {
	// Supergroup ids are -100XXXXXXXXXX; t.me/c links take the bare part.
	s := strconv.FormatInt(chatID, 10)
	if len(s) > 4 && s[:4] == "-100" {
		return "https://t.me/c/" + s[4:]
	}
	return "https://t.me/c/" + s
}
