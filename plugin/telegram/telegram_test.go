package telegram

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

func TestValidSecret(t *testing.T) {
	require.True(t, ValidSecret("s3cret", "s3cret"))
	require.False(t, ValidSecret("wrong", "s3cret"))
	require.False(t, ValidSecret("", "s3cret"))
	require.False(t, ValidSecret("anything", ""))
	require.False(t, ValidSecret("", ""))
}

func TestValidateRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/webhook/telegram", nil)
	require.False(t, ValidateRequest(r, "s3cret"))

	r.Header.Set(SecretTokenHeader, "s3cret")
	require.True(t, ValidateRequest(r, "s3cret"))
}

func TestNewUnauthorizedBody(t *testing.T) {
	body := NewUnauthorizedBody(time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC))
	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.JSONEq(t, `{"error":"Unauthorized","code":"INVALID_WEBHOOK_SIGNATURE","timestamp":"2025-03-04T10:00:00Z"}`, string(data))
}

func TestParseUpdateMessage(t *testing.T) {
	raw := `{
		"update_id": 1,
		"message": {
			"message_id": 42,
			"date": 1741078800,
			"text": "Где мой счёт?",
			"chat": {"id": -1001234567890, "type": "supergroup", "title": "ООО Ромашка"},
			"from": {"id": 555, "username": "ivan", "first_name": "Иван", "last_name": "Петров"}
		}
	}`
	var update tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))

	event := ParseUpdate(&update)
	require.NotNil(t, event)
	require.Equal(t, EventMessage, event.Kind)
	require.Equal(t, int64(-1001234567890), event.ChatID)
	require.Equal(t, "supergroup", event.ChatType)
	require.Equal(t, "ООО Ромашка", event.ChatTitle)
	require.Equal(t, int64(42), event.MessageID)
	require.Equal(t, int64(555), event.SenderID)
	require.Equal(t, "ivan", event.SenderUsername)
	require.Equal(t, "Иван Петров", event.SenderName)
	require.Equal(t, "Где мой счёт?", event.Text)
	require.Equal(t, int64(1741078800), event.SentTs)
	require.Nil(t, event.ReplyToMessageID)
}

func TestParseUpdateEditedMessage(t *testing.T) {
	raw := `{
		"update_id": 2,
		"edited_message": {
			"message_id": 42,
			"date": 1741078800,
			"edit_date": 1741079100,
			"text": "нужна справка 2-НДФЛ",
			"chat": {"id": -100, "type": "group"},
			"from": {"id": 555, "first_name": "Иван"}
		}
	}`
	var update tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))

	event := ParseUpdate(&update)
	require.NotNil(t, event)
	require.Equal(t, EventEditedMessage, event.Kind)
	require.Equal(t, int64(1741079100), event.SentTs)
}

func TestParseUpdateReply(t *testing.T) {
	raw := `{
		"update_id": 3,
		"message": {
			"message_id": 50,
			"date": 1741081500,
			"text": "Счёт во вложении",
			"chat": {"id": -100, "type": "group"},
			"from": {"id": 777, "username": "anna_acc", "first_name": "Анна"},
			"reply_to_message": {
				"message_id": 42,
				"date": 1741078800,
				"chat": {"id": -100, "type": "group"}
			}
		}
	}`
	var update tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))

	event := ParseUpdate(&update)
	require.NotNil(t, event)
	require.NotNil(t, event.ReplyToMessageID)
	require.Equal(t, int64(42), *event.ReplyToMessageID)
}

func TestParseUpdateCallback(t *testing.T) {
	raw := `{
		"update_id": 4,
		"callback_query": {
			"id": "cb-1",
			"data": "resolve:12",
			"from": {"id": 999, "username": "manager", "first_name": "Мария"},
			"message": {
				"message_id": 60,
				"date": 1741081500,
				"chat": {"id": 999, "type": "private"}
			}
		}
	}`
	var update tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))

	event := ParseUpdate(&update)
	require.NotNil(t, event)
	require.Equal(t, EventCallback, event.Kind)
	require.Equal(t, "cb-1", event.CallbackID)
	require.Equal(t, "resolve:12", event.CallbackData)
	require.Equal(t, int64(999), event.SenderID)
}

func TestParseUpdateIgnoresOtherKinds(t *testing.T) {
	var update tgbotapi.Update
	require.Nil(t, ParseUpdate(&update))
}

func TestKeyboardMarkup(t *testing.T) {
	markup := keyboardMarkup(Keyboard{
		{{Text: "Mark resolved", CallbackData: "resolve:12"}},
		{{Text: "Open chat", URL: "https://t.me/c/123"}},
	})
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Equal(t, "resolve:12", *markup.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "https://t.me/c/123", *markup.InlineKeyboard[1][0].URL)

	require.Nil(t, keyboardMarkup(nil))
}

func TestChatLink(t *testing.T) {
	require.Equal(t, "https://t.me/c/1234567890", ChatLink(-1001234567890))
}
