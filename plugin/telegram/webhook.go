package telegram

import (
	"crypto/subtle"
	"net/http"
	"time"
)

// SecretTokenHeader carries the shared webhook secret set via SetWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// ValidSecret compares the presented secret against the configured one in
// constant time. An empty configured secret rejects everything: production
// refuses to start without one and demo mode does not register a webhook.
func ValidSecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// ValidateRequest checks the webhook secret header of an inbound request.
func ValidateRequest(r *http.Request, secret string) bool {
	return ValidSecret(r.Header.Get(SecretTokenHeader), secret)
}

// UnauthorizedBody is the stable JSON body returned with HTTP 401 on a
// missing or mismatched webhook secret.
type UnauthorizedBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

func NewUnauthorizedBody(now time.Time) UnauthorizedBody {
	return UnauthorizedBody{
		Error:     "Unauthorized",
		Code:      "INVALID_WEBHOOK_SIGNATURE",
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
