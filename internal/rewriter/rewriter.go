package rewriter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xaenox/diplomat-bot/internal/metrics"
	"go.uber.org/zap"
)

// Texts returned in place of a rewrite or explanation when the model fails.
const (
	RateLimitedText      = "System is currently cooling down (Rate Limit). Please wait 30-60 seconds and try again."
	SuggestionErrorText  = "Error generating suggestion: %v"
	ExplanationErrorText = "Could not generate explanation."
)

// ErrRateLimited marks provider errors caused by quota or rate limits.
var ErrRateLimited = errors.New("rate limited")

type RewriteRequest struct {
	Original string
	Tone     string
	Channel  string
	Guidance string
}

type ExplainRequest struct {
	Original  string
	Rewritten string
	Tone      string
}

// Rewriter turns a draft into a rewrite in the requested tone and explains the
// result. Implementations never fail: errors come back as displayable text.
type Rewriter interface {
	Rewrite(ctx context.Context, req RewriteRequest) string
	Explain(ctx context.Context, req ExplainRequest) string
}

// Completer sends one prompt to a language model and returns its answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// LLMRewriter builds the rewrite and explanation prompts and sends them
// through a circuit breaker to a Completer.
type LLMRewriter struct {
	completer Completer
	breaker   *gobreaker.CircuitBreaker
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewLLMRewriter(completer Completer, breaker BreakerConfig, collector *metrics.Collector, logger *zap.Logger) *LLMRewriter {
	logger = logger.With(zap.String("provider", completer.Name()))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        completer.Name(),
		MaxRequests: breaker.MaxRequests,
		Interval:    breaker.Interval,
		Timeout:     breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breaker.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &LLMRewriter{
		completer: completer,
		breaker:   cb,
		metrics:   collector,
		logger:    logger,
	}
}

func (r *LLMRewriter) Rewrite(ctx context.Context, req RewriteRequest) string {
	prompt := fmt.Sprintf(`
Act as an expert communication diplomat and editor.

Your Goal: Rewrite the following message to match the target tone: "%s".
Output Format: The message is intended for a "%s" format. Adjust formatting, length, and style accordingly (e.g. Subject lines for emails, hashtags for social posts).

Context/Constraints:
%s

Original Message:
"%s"

Output Format:
Return ONLY the refined message. Do not include any introductory text like "Here is the refined message".
`, req.Tone, req.Channel, req.Guidance, req.Original)

	text, err := r.complete(ctx, "rewrite", prompt)
	if err != nil {
		if isRateLimited(err) {
			return RateLimitedText
		}
		return fmt.Sprintf(SuggestionErrorText, err)
	}
	return CleanRewrite(text)
}

func (r *LLMRewriter) Explain(ctx context.Context, req ExplainRequest) string {
	prompt := fmt.Sprintf(`
You just rewrote a message to be more "%s".

Original: "%s"
New: "%s"

Explain your changes in 1 single sentence. start with "I changed..."
`, req.Tone, req.Original, req.Rewritten)

	text, err := r.complete(ctx, "explain", prompt)
	if err != nil {
		return ExplanationErrorText
	}
	return strings.TrimSpace(text)
}

func (r *LLMRewriter) complete(ctx context.Context, op, prompt string) (string, error) {
	start := time.Now()
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.completer.Complete(ctx, prompt)
	})
	r.metrics.ObserveCollaborator(op, time.Since(start).Seconds())

	if err != nil {
		reason := failureReason(err)
		r.metrics.ObserveCollaboratorFailure(op, reason)
		r.logger.Error("Model call failed",
			zap.String("operation", op),
			zap.String("reason", reason),
			zap.Error(err))
		return "", err
	}
	return out.(string), nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case isRateLimited(err):
		return "rate_limit"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// an open breaker is reported like a rate limit: the caller should wait
func isRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota")
}

// CleanRewrite strips whitespace plus the quotes and code fences models like
// to wrap their answer in.
func CleanRewrite(text string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`\""))
}
