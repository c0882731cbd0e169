package rewriter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/diplomat-bot/internal/metrics"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	replies []string
	errs    []error
	prompts []string
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", nil
}

func newTestRewriter(c Completer) *LLMRewriter {
	return NewLLMRewriter(c, DefaultBreakerConfig(), metrics.NewCollector("test"), zap.NewNop())
}

func TestLLMRewriter_RewriteCleansOutput(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"```\"Dear Mr. Smith, could you send the files?\"```\n"}}
	r := newTestRewriter(fc)

	out := r.Rewrite(context.Background(), RewriteRequest{
		Original: "send files",
		Tone:     "Formal",
		Channel:  "Email",
		Guidance: "USER CONTEXT (The Sender): Doctor\n",
	})

	assert.Equal(t, "Dear Mr. Smith, could you send the files?", out)
	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], `target tone: "Formal"`)
	assert.Contains(t, fc.prompts[0], `"Email" format`)
	assert.Contains(t, fc.prompts[0], "USER CONTEXT (The Sender): Doctor")
	assert.Contains(t, fc.prompts[0], `"send files"`)
}

func TestLLMRewriter_RewriteRateLimited(t *testing.T) {
	tests := []error{
		fmt.Errorf("%w: slow down", ErrRateLimited),
		errors.New("googleapi: Error 429: Resource exhausted"),
		errors.New("You exceeded your current Quota"),
	}
	for _, err := range tests {
		r := newTestRewriter(&fakeCompleter{errs: []error{err}})
		assert.Equal(t, RateLimitedText, r.Rewrite(context.Background(), RewriteRequest{Original: "x"}), err.Error())
	}
}

func TestLLMRewriter_RewriteOtherError(t *testing.T) {
	r := newTestRewriter(&fakeCompleter{errs: []error{errors.New("connection refused")}})

	out := r.Rewrite(context.Background(), RewriteRequest{Original: "x"})
	assert.Equal(t, "Error generating suggestion: connection refused", out)
}

func TestLLMRewriter_Explain(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"  I changed the greeting.  "}}
	r := newTestRewriter(fc)

	out := r.Explain(context.Background(), ExplainRequest{Original: "yo", Rewritten: "Hello", Tone: "Formal"})
	assert.Equal(t, "I changed the greeting.", out)
	assert.Contains(t, fc.prompts[0], `more "Formal"`)
	assert.Contains(t, fc.prompts[0], `Original: "yo"`)
	assert.Contains(t, fc.prompts[0], `New: "Hello"`)
}

func TestLLMRewriter_ExplainError(t *testing.T) {
	r := newTestRewriter(&fakeCompleter{errs: []error{errors.New("boom")}})
	assert.Equal(t, ExplanationErrorText, r.Explain(context.Background(), ExplainRequest{}))
}

func TestLLMRewriter_OpenCircuitFallsBack(t *testing.T) {
	boom := errors.New("boom")
	fc := &fakeCompleter{errs: []error{boom, boom, boom, boom, boom, boom, boom}}
	cfg := BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 2}
	r := NewLLMRewriter(fc, cfg, nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		out := r.Rewrite(context.Background(), RewriteRequest{Original: "x"})
		assert.True(t, strings.HasPrefix(out, "Error generating suggestion"))
	}

	// breaker is open now: the completer is not called again
	out := r.Rewrite(context.Background(), RewriteRequest{Original: "x"})
	assert.Equal(t, RateLimitedText, out)
	assert.Len(t, fc.prompts, 2)
}

func TestCleanRewrite(t *testing.T) {
	assert.Equal(t, "hi", CleanRewrite(`"hi"`))
	assert.Equal(t, "hi", CleanRewrite("```hi```"))
	assert.Equal(t, "it's fine", CleanRewrite("  it's fine \n"))
	assert.Equal(t, "", CleanRewrite(`""`))
}

func TestEchoRewriter(t *testing.T) {
	r := NewEchoRewriter()
	assert.Equal(t, "draft", r.Rewrite(context.Background(), RewriteRequest{Original: "draft"}))
	assert.NotEmpty(t, r.Explain(context.Background(), ExplainRequest{}))
}
