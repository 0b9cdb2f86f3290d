// Package profile holds the runtime configuration of a slawatch instance.
package profile

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode is "prod", "dev" or "demo".
	Mode string
	// Addr is the bind address of the HTTP server.
	Addr string
	// Port is the bind port of the HTTP server.
	Port int
	// DSN is the Postgres data source name.
	DSN string
	// Version is the current service version.
	Version string

	// InstanceURL is the public URL of this instance. Telegram needs it to
	// register the webhook endpoint.
	InstanceURL string

	// Telegram transport configuration.
	TelegramBotToken      string
	TelegramWebhookSecret string

	// AI classifier configuration (OpenAI-compatible protocol).
	AIProvider string
	AIAPIKey   string
	AIBaseURL  string
	AIModel    string
	AITimeout  int // seconds

	// API tokens per authorization tier. A request authenticated with the
	// admin token also passes manager and authed checks.
	AdminToken   string
	ManagerToken string
	AuthedToken  string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Provider default base URLs for the AI classifier.
// Used when SLAWATCH_AI_BASE_URL is not explicitly set.
var aiProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the AI classifier step is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.TelegramBotToken = getEnvOrDefault("SLAWATCH_TELEGRAM_BOT_TOKEN", "")
	p.TelegramWebhookSecret = getEnvOrDefault("SLAWATCH_TELEGRAM_WEBHOOK_SECRET", "")

	p.AIProvider = getEnvOrDefault("SLAWATCH_AI_PROVIDER", "openai")
	p.AIAPIKey = getEnvOrDefault("SLAWATCH_AI_API_KEY", "")
	p.AIBaseURL = getEnvOrDefault("SLAWATCH_AI_BASE_URL", "")
	p.AIModel = getEnvOrDefault("SLAWATCH_AI_MODEL", "")
	p.AITimeout = getEnvOrDefaultInt("SLAWATCH_AI_TIMEOUT_SECONDS", 30)

	if p.AIProvider != "" {
		if _, ok := aiProviderDefaults[p.AIProvider]; !ok {
			slog.Warn("unknown AI provider, using default: openai", "provider", p.AIProvider)
			p.AIProvider = "openai"
		}
	}
	if defaults, ok := aiProviderDefaults[p.AIProvider]; ok {
		if p.AIBaseURL == "" {
			p.AIBaseURL = defaults.BaseURL
		}
		if p.AIModel == "" {
			p.AIModel = defaults.Model
		}
	}

	p.AdminToken = getEnvOrDefault("SLAWATCH_ADMIN_TOKEN", "")
	p.ManagerToken = getEnvOrDefault("SLAWATCH_MANAGER_TOKEN", "")
	p.AuthedToken = getEnvOrDefault("SLAWATCH_API_TOKEN", "")

	p.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
}

// Validate checks that the profile is usable. In production mode a missing
// webhook secret is a critical misconfiguration: anyone could post fabricated
// chat events to the webhook endpoint.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.DSN == "" {
		return errors.New("database DSN is required")
	}

	if p.Mode == "prod" {
		if p.TelegramWebhookSecret == "" {
			slog.Error("CRITICAL: SLAWATCH_TELEGRAM_WEBHOOK_SECRET is not set in production mode")
			return errors.New("webhook secret is mandatory in production")
		}
		if p.TelegramBotToken == "" {
			return errors.New("telegram bot token is mandatory in production")
		}
	}

	return nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (p *Profile) SlogLevel() slog.Level {
	switch p.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
