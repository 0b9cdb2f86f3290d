package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/slawatch/plugin/telegram"
)

// WebhookPath is where Telegram posts updates.
const WebhookPath = "/webhook/telegram"

// handleTelegramWebhook verifies the secret token, parses the update and
// routes it to the engine. Processing failures still return 200: Telegram
// retries non-2xx responses and a redelivery would not fix a handler bug.
func (s *Server) handleTelegramWebhook(c echo.Context) error {
	if s.webhookSecretRequired() && !telegram.ValidateRequest(c.Request(), s.Profile.TelegramWebhookSecret) {
		s.exporter.RecordWebhookRejected()
		slog.Warn("webhook update rejected", "remote", c.RealIP())
		return c.JSON(http.StatusUnauthorized, telegram.NewUnauthorizedBody(time.Now()))
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed update"})
	}

	event := telegram.ParseUpdate(&update)
	if event == nil {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	ctx := c.Request().Context()
	var err error
	switch event.Kind {
	case telegram.EventCallback:
		err = s.delivery.HandleCallback(ctx, event)
	default:
		err = s.engine.HandleMessage(ctx, event)
	}
	if err != nil {
		slog.Error("failed to process update",
			"kind", event.Kind,
			"chatId", event.ChatID,
			"messageId", event.MessageID,
			"error", err,
		)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// webhookSecretRequired reports whether inbound updates must carry the secret
// token. Dev and demo instances without a configured secret accept anything,
// which keeps local testing with curl simple. Production refuses to start
// without a secret, so the check is always on there.
func (s *Server) webhookSecretRequired() bool {
	return s.Profile.TelegramWebhookSecret != "" || !s.Profile.IsDev()
}
