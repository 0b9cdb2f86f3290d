package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/slawatch/internal/profile"
)

const classifierSystemPrompt = `You classify messages from clients of an accounting firm.
Reply with a single JSON object: {"category": "...", "confidence": 0.0-1.0, "reasoning": "..."}.
Category must be one of:
- REQUEST: the client asks a question or needs an action from the accountant
- SPAM: advertising or irrelevant promotional content
- GRATITUDE: thanks or praise, no action needed
- CLARIFICATION: a short acknowledgement or follow-up that needs no response
Messages are usually in Russian. Return JSON only, no extra text.`

// Engine produces a classification for raw message text.
type Engine interface {
	Classify(ctx context.Context, text string) (*Result, error)
	Model() string
}

// AIEngine classifies text through an OpenAI-compatible chat API.
type AIEngine struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewAIEngine builds an engine from the resolved profile. Returns nil when no
// API key is configured, which disables the AI step of the cascade.
func NewAIEngine(p *profile.Profile) *AIEngine {
	if p.AIAPIKey == "" {
		slog.Info("ai classifier disabled, no api key configured")
		return nil
	}

	clientConfig := openai.DefaultConfig(p.AIAPIKey)
	if p.AIBaseURL != "" {
		clientConfig.BaseURL = p.AIBaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := time.Duration(p.AITimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &AIEngine{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   p.AIModel,
		timeout: timeout,
	}
}

func (e *AIEngine) Model() string {
	return e.model
}

func (e *AIEngine) Classify(ctx context.Context, text string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   256,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("AI classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from AI classifier")
	}

	return parseAIResponse(resp.Choices[0].Message.Content, e.model)
}

func parseAIResponse(content, model string) (*Result, error) {
	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response %q: %w", content, err)
	}

	category := Category(strings.ToUpper(strings.TrimSpace(parsed.Category)))
	switch category {
	case CategoryRequest, CategorySpam, CategoryGratitude, CategoryClarification:
	default:
		return nil, fmt.Errorf("failed to parse classifier category %q", parsed.Category)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, fmt.Errorf("failed to parse classifier confidence %v", parsed.Confidence)
	}

	return &Result{
		Category:   category,
		Confidence: parsed.Confidence,
		Model:      model,
		Reasoning:  parsed.Reasoning,
	}, nil
}

// extractJSON strips markdown fences some models wrap around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}

// ErrorKind buckets an AI call error for metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "json") || strings.Contains(msg, "parse"):
		return "parse_error"
	default:
		return "api_error"
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
