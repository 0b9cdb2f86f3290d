// Package classifier decides whether an inbound chat message is a client
// request. Classification runs as a cascade: content-addressed cache, then an
// AI model behind a circuit breaker, then a deterministic keyword table.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hrygo/slawatch/internal/metrics"
	"github.com/hrygo/slawatch/store"
)

// Category is the classification outcome for a message.
type Category string

const (
	CategoryRequest       Category = "REQUEST"
	CategorySpam          Category = "SPAM"
	CategoryGratitude     Category = "GRATITUDE"
	CategoryClarification Category = "CLARIFICATION"
)

// Model labels for non-AI cascade steps.
const (
	ModelCache   = "cache"
	ModelKeyword = "keyword"
)

// Result is the classification outcome.
type Result struct {
	Category   Category
	Confidence float64
	Model      string
	Reasoning  string
}

// IsRequest reports whether the message needs SLA tracking.
func (r *Result) IsRequest() bool {
	return r.Category == CategoryRequest
}

type classifierStore interface {
	GetGlobalSettings(ctx context.Context) (*store.GlobalSettings, error)
	GetClassificationCache(ctx context.Context, hash string, nowTs int64) (*store.ClassificationCacheEntry, error)
	UpsertClassificationCache(ctx context.Context, entry *store.ClassificationCacheEntry) error
}

// Classifier runs the cascade. A nil engine skips the AI step entirely.
type Classifier struct {
	store    classifierStore
	engine   Engine
	breaker  *Breaker
	exporter *metrics.Exporter
	now      func() time.Time
}

func New(st classifierStore, engine Engine, breaker *Breaker, exporter *metrics.Exporter) *Classifier {
	return &Classifier{
		store:    st,
		engine:   engine,
		breaker:  breaker,
		exporter: exporter,
		now:      time.Now,
	}
}

// Breaker exposes the circuit breaker for admin inspection and reset.
func (c *Classifier) Breaker() *Breaker {
	return c.breaker
}

// Classify resolves a category for the text. It never returns an error for a
// degraded AI backend; only settings/cache store failures propagate.
func (c *Classifier) Classify(ctx context.Context, text string) (*Result, error) {
	settings, err := c.store.GetGlobalSettings(ctx)
	if err != nil {
		return nil, err
	}

	hash := TextHash(text)
	now := c.now()

	if entry, err := c.store.GetClassificationCache(ctx, hash, now.Unix()); err == nil && entry != nil {
		c.exporter.RecordCacheHit()
		c.exporter.RecordClassification(ModelCache, entry.Category, 0)
		return &Result{
			Category:   Category(entry.Category),
			Confidence: entry.Confidence,
			Model:      ModelCache,
			Reasoning:  entry.Reasoning,
		}, nil
	} else if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	c.exporter.RecordCacheMiss()

	aiResult := c.classifyAI(ctx, text)
	if aiResult != nil && aiResult.Confidence >= settings.AIConfidenceThreshold {
		if err := c.cache(ctx, hash, aiResult, settings); err != nil {
			slog.Warn("failed to cache classification", "error", err)
		}
		return aiResult, nil
	}

	start := time.Now()
	result := classifyKeyword(text)
	c.exporter.RecordClassification(ModelKeyword, string(result.Category), time.Since(start).Seconds())

	// A sub-threshold AI opinion still beats a weaker keyword match.
	if aiResult != nil && aiResult.Confidence >= result.Confidence {
		aiResult.Reasoning = "low-confidence: " + aiResult.Reasoning
		result = aiResult
	} else if result.Model == ModelKeyword && result.Confidence < settings.KeywordConfidenceThreshold {
		// Safety bias: track rather than drop ambiguous messages.
		result = &Result{
			Category:   CategoryRequest,
			Confidence: settings.KeywordConfidenceThreshold,
			Model:      ModelKeyword,
			Reasoning:  "promoted below-threshold result: " + result.Reasoning,
		}
	}

	if err := c.cache(ctx, hash, result, settings); err != nil {
		slog.Warn("failed to cache classification", "error", err)
	}
	return result, nil
}

// classifyAI runs the breaker-guarded AI step. Any failure is absorbed: the
// caller falls through to the keyword table.
func (c *Classifier) classifyAI(ctx context.Context, text string) *Result {
	if c.engine == nil || !c.breaker.CanRequest() {
		return nil
	}

	start := time.Now()
	result, err := c.engine.Classify(ctx, text)
	if err != nil {
		c.breaker.RecordFailure()
		c.exporter.RecordClassifierError(c.engine.Model(), ErrorKind(err))
		slog.Warn("ai classification failed",
			"model", c.engine.Model(),
			"kind", ErrorKind(err),
			"breaker", c.breaker.State(),
			"error", err,
		)
		return nil
	}

	c.breaker.RecordSuccess()
	c.exporter.RecordClassification(result.Model, string(result.Category), time.Since(start).Seconds())
	return result
}

func (c *Classifier) cache(ctx context.Context, hash string, result *Result, settings *store.GlobalSettings) error {
	now := c.now().Unix()
	return c.store.UpsertClassificationCache(ctx, &store.ClassificationCacheEntry{
		Hash:       hash,
		Category:   string(result.Category),
		Confidence: result.Confidence,
		Model:      result.Model,
		Reasoning:  result.Reasoning,
		ExpiresTs:  now + int64(settings.CacheTTLHours)*3600,
		CreatedTs:  now,
	})
}

// TextHash returns the content-addressed cache key for a message text.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])
}
