package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/slawatch/internal/profile"
	"github.com/hrygo/slawatch/plugin/telegram"
)

func webhookServer(p *profile.Profile) *Server {
	return &Server{Profile: p}
}

func postUpdate(t *testing.T, s *Server, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(telegram.SecretTokenHeader, secret)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	require.NoError(t, s.handleTelegramWebhook(c))
	return rec
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	s := webhookServer(&profile.Profile{Mode: "prod", TelegramWebhookSecret: "hook-secret"})

	for _, secret := range []string{"", "wrong"} {
		rec := postUpdate(t, s, `{"update_id":1}`, secret)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var body telegram.UnauthorizedBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "INVALID_WEBHOOK_SIGNATURE", body.Code)
		_, err := time.Parse(time.RFC3339, body.Timestamp)
		require.NoError(t, err)
	}
}

func TestWebhookRejectsMalformedUpdate(t *testing.T) {
	s := webhookServer(&profile.Profile{Mode: "prod", TelegramWebhookSecret: "hook-secret"})
	rec := postUpdate(t, s, `{"update_id":`, "hook-secret")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookIgnoresUnknownUpdateKinds(t *testing.T) {
	s := webhookServer(&profile.Profile{Mode: "prod", TelegramWebhookSecret: "hook-secret"})
	// An inline query is not consumed by the engine.
	rec := postUpdate(t, s, `{"update_id":7,"inline_query":{"id":"1","query":"q"}}`, "hook-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestWebhookDevModeWithoutSecretAcceptsAnything(t *testing.T) {
	s := webhookServer(&profile.Profile{Mode: "dev"})
	rec := postUpdate(t, s, `{"update_id":7}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
