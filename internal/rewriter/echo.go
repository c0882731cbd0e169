package rewriter

import "context"

// EchoRewriter is the offline stand-in used when no model is configured. It
// hands the draft back unchanged.
type EchoRewriter struct{}

func NewEchoRewriter() *EchoRewriter {
	return &EchoRewriter{}
}

func (EchoRewriter) Rewrite(ctx context.Context, req RewriteRequest) string {
	return req.Original
}

func (EchoRewriter) Explain(ctx context.Context, req ExplainRequest) string {
	return "I changed nothing because no language model is configured."
}
