// Package delivery turns alert rows into Telegram messages: it renders the
// notification, sends it to the addressed manager, and reacts to the inline
// keyboard taps coming back.
package delivery

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hrygo/slawatch/plugin/telegram"
	"github.com/hrygo/slawatch/store"
)

// alertView bundles everything the template needs. Chat and Message may be
// nil when the source rows were purged.
type alertView struct {
	Alert     *store.SlaAlert
	Request   *store.ClientRequest
	Chat      *store.Chat
	Message   *store.ChatMessage
	Threshold int32
	Preview   int32
	Location  *time.Location
}

func renderAlert(v alertView) string {
	var b strings.Builder

	switch {
	case v.Alert.AlertType == store.AlertWarning:
		b.WriteString("⚠️ <b>Приближается нарушение SLA</b>\n\n")
	case v.Alert.EscalationLevel > 0:
		fmt.Fprintf(&b, "🔴 <b>Нарушение SLA (эскалация %d)</b>\n\n", v.Alert.EscalationLevel)
	default:
		b.WriteString("🔴 <b>Нарушение SLA</b>\n\n")
	}

	if v.Chat != nil && v.Chat.Title != "" {
		fmt.Fprintf(&b, "Чат: <b>%s</b>\n", html.EscapeString(v.Chat.Title))
	}
	if v.Message != nil && v.Message.SenderName != "" {
		fmt.Fprintf(&b, "Клиент: %s\n", html.EscapeString(v.Message.SenderName))
	}
	fmt.Fprintf(&b, "Прошло: %d мин из %d\n", v.Alert.MinutesElapsed, v.Threshold)

	loc := v.Location
	if loc == nil {
		loc = time.UTC
	}
	received := time.Unix(v.Request.ReceivedTs, 0).In(loc)
	fmt.Fprintf(&b, "Получено: %s\n", received.Format("02.01.2006 15:04"))

	if v.Message != nil && v.Message.Text != "" {
		preview := truncatePreview(v.Message.Text, v.Preview)
		fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(preview))
	}
	return b.String()
}

// alertKeyboard builds the action buttons under an alert. The callback data
// formats are the contract with HandleCallback.
func alertKeyboard(alertID, chatID int64) telegram.Keyboard {
	return telegram.Keyboard{
		{
			{Text: "✅ Решено", CallbackData: fmt.Sprintf("resolve:%d", alertID)},
			{Text: "📣 Напомнить бухгалтеру", CallbackData: fmt.Sprintf("notify:%d", alertID)},
		},
		{
			{Text: "Открыть чат", URL: telegram.ChatLink(chatID)},
		},
	}
}

// truncatePreview cuts the text to max runes, appending an ellipsis when
// something was dropped. Telegram counts characters, not bytes.
func truncatePreview(text string, max int32) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= int(max) {
		return text
	}
	return string(runes[:max]) + "…"
}
