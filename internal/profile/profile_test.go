package profile

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvVars(t *testing.T) {
	t.Setenv("SLAWATCH_TELEGRAM_BOT_TOKEN", "")
	t.Setenv("SLAWATCH_TELEGRAM_WEBHOOK_SECRET", "")
	t.Setenv("SLAWATCH_AI_PROVIDER", "")
	t.Setenv("SLAWATCH_AI_API_KEY", "")
	t.Setenv("SLAWATCH_AI_BASE_URL", "")
	t.Setenv("SLAWATCH_AI_MODEL", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnvVars(t)

	p := &Profile{}
	p.FromEnv()

	assert.False(t, p.IsAIEnabled())
	assert.Equal(t, "openai", p.AIProvider)
	assert.Equal(t, "https://api.openai.com/v1", p.AIBaseURL)
	assert.Equal(t, "gpt-4o-mini", p.AIModel)
	assert.Equal(t, 30, p.AITimeout)
	assert.Equal(t, "info", p.LogLevel)
}

func TestFromEnvUnknownProviderFallsBack(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("SLAWATCH_AI_PROVIDER", "mystery")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "openai", p.AIProvider)
}

func TestValidateProdRequiresWebhookSecret(t *testing.T) {
	p := &Profile{
		Mode:             "prod",
		DSN:              "postgres://localhost/slawatch",
		TelegramBotToken: "token",
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook secret")

	p.TelegramWebhookSecret = "secret"
	require.NoError(t, p.Validate())
}

func TestValidateUnknownModeBecomesDemo(t *testing.T) {
	p := &Profile{Mode: "staging", DSN: "postgres://localhost/slawatch"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "demo", p.Mode)
}

func TestValidateRequiresDSN(t *testing.T) {
	p := &Profile{Mode: "dev"}
	require.Error(t, p.Validate())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		p := &Profile{LogLevel: tt.level}
		assert.Equal(t, tt.expected, p.SlogLevel(), "level %q", tt.level)
	}
}
