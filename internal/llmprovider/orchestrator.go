package llmprovider

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Mode selects which of the Brain's three LLM roles a call belongs to
// (spec.md §4.C4 "Modes"). Generalizes the teacher's internal/llm/client.go
// NewTier(prefix) role-selection pattern (BRAIN/TOOL env-prefixed clients)
// to a fixed three-mode router instead of an open set of tiers.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeFast    Mode = "fast"
	ModeVision  Mode = "vision"
)

// rateLimitRetryDelay is the fixed sleep before the orchestrator's single
// automatic retry (spec.md §4.C4 "Rate-limit retry", property/scenario S5).
const rateLimitRetryDelay = time.Second

// Orchestrator routes calls to the configured provider for each mode,
// falling back to default when fast/vision are not separately configured
// (spec.md §4.C4 "Fallback").
type Orchestrator struct {
	Default Provider
	Fast    Provider
	Vision  Provider

	log *slog.Logger
}

// NewOrchestrator builds an Orchestrator. fast and vision may be nil, in
// which case calls to those modes are served by def (single-mode config).
func NewOrchestrator(def, fast, vision Provider) *Orchestrator {
	return &Orchestrator{
		Default: def,
		Fast:    fast,
		Vision:  vision,
		log:     slog.Default().With("component", "llmprovider"),
	}
}

func (o *Orchestrator) providerFor(mode Mode) Provider {
	switch mode {
	case ModeFast:
		if o.Fast != nil {
			return o.Fast
		}
	case ModeVision:
		if o.Vision != nil {
			return o.Vision
		}
	}
	return o.Default
}

// ClearHistory clears the default-mode provider's stateful conversation.
// Fast/vision modes are always stateless and have nothing to clear.
func (o *Orchestrator) ClearHistory() {
	o.Default.ClearHistory()
}

// SendWithMode is the one entry point the Brain itself uses, always with
// ModeVision (spec.md §6 "The Brain itself uses only sendWithMode(\"vision\", …)").
// messages is treated as a stateless sendOnce call regardless of mode,
// matching how the VLM Adapter always calls vision mode one-shot.
func (o *Orchestrator) SendWithMode(ctx context.Context, mode Mode, messages []Message, tools []Tool) (Response, error) {
	provider := o.providerFor(mode)
	return withRateLimitRetry(ctx, o.log, provider.Name(), func() (Response, error) {
		return provider.SendOnce(ctx, messages, tools)
	})
}

// isRateLimitError reports whether an error message contains a rate-limit
// indicator (spec.md §4.C4 "Rate-limit retry").
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429")
}

// withRateLimitRetry implements the single-retry policy (S5): on a
// rate-limit error, sleep ~1s and retry exactly once; any further failure
// propagates.
func withRateLimitRetry(ctx context.Context, log *slog.Logger, providerName string, call func() (Response, error)) (Response, error) {
	resp, err := call()
	if err == nil || !isRateLimitError(err) {
		return resp, err
	}
	log.Warn("rate limited, retrying once", "provider", providerName)
	select {
	case <-time.After(rateLimitRetryDelay):
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	return call()
}
