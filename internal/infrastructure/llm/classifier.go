package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/monitoring"
	"ImpactWatcher/internal/ports"
)

// Instruction is sent with every post.
const Instruction = `You are a financial market analyst. Read the social media post below (it may contain HTML) and judge its likely effect on the broad US stock market.
Classify the sentiment as "positive" (market likely to rise), "negative" (market likely to fall) or "neutral" (no meaningful effect).
Mark it "significant" only when an immediate market move is obvious to an experienced investor.
Give a short reasoning of one or two sentences.

Answer with a single JSON object and nothing else:
{"sentiment": "positive" | "negative" | "neutral", "significant": true | false, "reasoning": "..."}`

// Fallback reasons reported to logs and metrics.
const (
	ReasonBackend     = "backend_error"
	ReasonEmpty       = "empty"
	ReasonInvalidJSON = "invalid_json"
	ReasonNotObject   = "not_object"
	ReasonSentiment   = "sentiment"
	ReasonSignificant = "significant"
	ReasonReasoning   = "reasoning"
)

// Classifier adapts a raw text backend into a total classification function.
type Classifier struct {
	backend ports.ClassifierBackend
	logger  *slog.Logger
	metrics *monitoring.Collector
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier wraps backend; metrics may be nil.
func NewClassifier(backend ports.ClassifierBackend, logger *slog.Logger, metrics *monitoring.Collector) *Classifier {
	return &Classifier{backend: backend, logger: logger, metrics: metrics}
}

// Classify never fails: anything unexpected degrades to a neutral, non-significant verdict.
func (c *Classifier) Classify(ctx context.Context, text string) domain.Classification {
	raw, err := c.backend.Complete(ctx, Instruction, text)
	if err != nil {
		c.fallback(ReasonBackend, "classifier backend failed", "error", err)
		return domain.NeutralClassification()
	}
	c.logger.Debug("classifier raw answer", "answer", raw)

	cls, reasons := ParseClassification(raw)
	for _, reason := range reasons {
		c.fallback(reason, "classifier answer degraded", "answer", truncate(raw, 300))
	}

	c.logger.Info("classified post",
		"direction", cls.Direction,
		"significant", cls.Significant,
		"reasoning", cls.Rationale,
	)
	return cls
}

func (c *Classifier) fallback(reason, msg string, args ...any) {
	c.logger.Warn(msg, append([]any{"reason", reason}, args...)...)
	c.metrics.ClassifierFallback(reason)
}

// ParseClassification applies field-by-field defaults to a backend answer and
// returns the reasons for every default it had to apply.
func ParseClassification(raw string) (domain.Classification, []string) {
	body := stripCodeFence(raw)
	if body == "" {
		return domain.NeutralClassification(), []string{ReasonEmpty}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		if json.Valid([]byte(body)) {
			return domain.NeutralClassification(), []string{ReasonNotObject}
		}
		return domain.NeutralClassification(), []string{ReasonInvalidJSON}
	}
	if fields == nil {
		return domain.NeutralClassification(), []string{ReasonNotObject}
	}

	cls := domain.NeutralClassification()
	var reasons []string

	var sentiment string
	if decodeField(fields, "sentiment", &sentiment) {
		if dir, ok := domain.ParseDirection(sentiment); ok {
			cls.Direction = dir
		} else {
			reasons = append(reasons, ReasonSentiment)
		}
	} else {
		reasons = append(reasons, ReasonSentiment)
	}

	if !decodeField(fields, "significant", &cls.Significant) {
		cls.Significant = false
		reasons = append(reasons, ReasonSignificant)
	}

	if !decodeField(fields, "reasoning", &cls.Rationale) {
		cls.Rationale = ""
		reasons = append(reasons, ReasonReasoning)
	}

	return cls, reasons
}

// decodeField reports false when key is absent, null or of the wrong JSON type.
func decodeField(fields map[string]json.RawMessage, key string, dst any) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	// language tag line, e.g. ```json
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
