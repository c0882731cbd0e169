// Package advisor turns drafts into tone-adjusted suggestions and learns from
// the user's verdicts.
//
// A Service is built once at start-up and shared by the front ends. It holds
// no per-user state of its own: callers pass the user record they loaded at
// login (or nil for a guest) and the service reads and updates it.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/diplomat-bot/internal/metrics"
	"github.com/xaenox/diplomat-bot/internal/models"
	"github.com/xaenox/diplomat-bot/internal/rewriter"
	"github.com/xaenox/diplomat-bot/internal/storage"
	"go.uber.org/zap"
)

// ChangeGenerativeRewrite is the only change description the service reports.
const ChangeGenerativeRewrite = "Used Generative AI for total rewrite"

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxHistory = 500
)

var (
	ErrGuest             = errors.New("not available for guest users")
	ErrInvalidInput      = errors.New("invalid input")
	ErrContactExists     = errors.New("contact already exists")
	ErrContactNotFound   = errors.New("contact not found")
	ErrUnknownSuggestion = errors.New("unknown suggestion")
)

// AdviceRequest is a draft plus the context it will be sent in. Tone and
// Channel are free text and fall back to defaults when unrecognised.
type AdviceRequest struct {
	Text         string
	Recipient    string
	Relationship string
	Tone         string
	Channel      string
	Situation    string
}

type Service struct {
	store      storage.Storage
	rewriter   rewriter.Rewriter
	logger     *zap.Logger
	metrics    *metrics.Collector
	timeout    time.Duration
	maxHistory int
	now        func() time.Time
	newID      func() string
}

type Option func(*Service)

// WithTimeout bounds each collaborator call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMaxHistory caps the persisted interaction log per user. Zero keeps
// everything.
func WithMaxHistory(n int) Option {
	return func(s *Service) { s.maxHistory = n }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(store storage.Storage, rw rewriter.Rewriter, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		rewriter:   rw,
		logger:     logger,
		timeout:    DefaultTimeout,
		maxHistory: DefaultMaxHistory,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advise produces a suggestion for the draft. It never fails: collaborator
// problems show up as text inside the suggestion. Nothing is persisted.
func (s *Service) Advise(ctx context.Context, user *models.User, req AdviceRequest) *models.Suggestion {
	if user == nil {
		user = models.NewGuest()
	}

	tone := models.ParseTone(req.Tone)
	channel := models.ParseChannel(req.Channel)

	content := req.Text
	if req.Situation != "" {
		content = fmt.Sprintf("[Context: %s] \nMessage: %s", req.Situation, req.Text)
	}

	msg := models.Message{
		Content:      content,
		Recipient:    req.Recipient,
		Relationship: req.Relationship,
		Tone:         tone,
		Channel:      channel,
		CreatedAt:    s.now(),
	}

	guidance := BuildGuidance(user, req.Relationship, tone)

	rewriteCtx, cancel := s.callContext(ctx)
	rewritten := s.rewriter.Rewrite(rewriteCtx, rewriter.RewriteRequest{
		Original: msg.Content,
		Tone:     string(tone),
		Channel:  string(channel),
		Guidance: guidance,
	})
	cancel()

	explainCtx, cancel := s.callContext(ctx)
	reasoning := s.rewriter.Explain(explainCtx, rewriter.ExplainRequest{
		Original:  msg.Content,
		Rewritten: rewritten,
		Tone:      string(tone),
	})
	cancel()

	s.metrics.ObserveAdvice(string(tone), string(channel), user.IsGuest())
	s.logger.Info("Advice generated",
		zap.String("username", user.Username),
		zap.String("relationship", req.Relationship),
		zap.String("tone", string(tone)),
		zap.String("channel", string(channel)),
		zap.Bool("guided", guidance != ""))

	return &models.Suggestion{
		ID:        s.newID(),
		Original:  msg,
		Content:   rewritten,
		Reasoning: reasoning,
		Changes:   []string{ChangeGenerativeRewrite},
	}
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Learn records the verdict on a suggestion. The kept text is the suggestion
// when accepted and the original draft when rejected.
func (s *Service) Learn(ctx context.Context, user *models.User, suggestion *models.Suggestion, accepted bool) error {
	final := suggestion.Original.Content
	if accepted {
		final = suggestion.Content
	}
	return s.LearnWithText(ctx, user, suggestion, accepted, final)
}

// LearnWithText records the verdict with the text the user actually kept.
// Guest verdicts update the guest record in memory only.
func (s *Service) LearnWithText(ctx context.Context, user *models.User, suggestion *models.Suggestion, accepted bool, finalText string) error {
	if suggestion == nil {
		return ErrUnknownSuggestion
	}
	if user == nil {
		return nil
	}

	score := user.Memory.Apply(models.Interaction{
		Message:      suggestion.Original,
		Suggestion:   *suggestion,
		Accepted:     accepted,
		FinalContent: finalText,
		Timestamp:    s.now(),
	})
	s.metrics.ObserveFeedback(accepted)

	logger := s.logger.With(
		zap.String("username", user.Username),
		zap.String("relationship", suggestion.Original.Relationship),
		zap.String("tone", string(suggestion.Original.Tone)),
		zap.Bool("accepted", accepted),
		zap.Int("score", score))

	if user.IsGuest() {
		logger.Debug("Guest feedback kept in memory only")
		return nil
	}

	if dropped := user.Memory.TrimHistory(s.maxHistory); dropped > 0 {
		logger.Info("Trimmed interaction history", zap.Int("dropped", dropped))
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		logger.Error("Failed to persist feedback", zap.Error(err))
		return fmt.Errorf("save feedback: %w", err)
	}
	logger.Info("Feedback recorded")
	return nil
}
