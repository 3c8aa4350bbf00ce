package vlm

import (
	"context"
	"testing"

	"github.com/haricheung/navbrain/internal/llmprovider"
)

// scriptedProvider returns one fixed response (or error) to every call, so
// tests can exercise the Adapter's parse/fallback logic in isolation.
type scriptedProvider struct {
	response llmprovider.Response
	err      error
}

func (s *scriptedProvider) Name() string { return "scripted" }
func (s *scriptedProvider) SupportsTools() bool { return false }
func (s *scriptedProvider) SupportsImages() bool { return true }
func (s *scriptedProvider) SupportsStreaming() bool { return false }
func (s *scriptedProvider) AddUserMessage(llmprovider.Content) {}
func (s *scriptedProvider) AddAssistantMessage(string) {}
func (s *scriptedProvider) AddToolResult(string, string) {}
func (s *scriptedProvider) ClearHistory() {}
func (s *scriptedProvider) Send(context.Context, []llmprovider.Tool) (llmprovider.Response, error) {
	return s.response, s.err
}
func (s *scriptedProvider) Stream(context.Context, []llmprovider.Tool) (<-chan llmprovider.Chunk, error) {
	return nil, nil
}
func (s *scriptedProvider) SendOnce(context.Context, []llmprovider.Message, []llmprovider.Tool) (llmprovider.Response, error) {
	return s.response, s.err
}

func newTestAdapter(content string, err error) *Adapter {
	provider := &scriptedProvider{response: llmprovider.Response{Content: content}, err: err}
	orch := llmprovider.NewOrchestrator(provider, nil, provider)
	return NewAdapter(orch)
}

func TestExtractProgramName_Success(t *testing.T) {
	a := newTestAdapter(`Chrome`, nil)
	if got := a.ExtractProgramName(context.Background(), "base64png", nil); got != "Chrome" {
		t.Fatalf("ExtractProgramName() = %q, want Chrome", got)
	}
}

func TestExtractProgramName_FallsBackOnEmpty(t *testing.T) {
	a := newTestAdapter("", nil)
	if got := a.ExtractProgramName(context.Background(), "base64png", nil); got != "Unknown" {
		t.Fatalf("ExtractProgramName() = %q, want Unknown", got)
	}
}

func TestIdentifyUIElements_ParsesJSON(t *testing.T) {
	a := newTestAdapter(`{"elements":[{"kind":"button","text":"OK"}],"description":"a dialog"}`, nil)
	result := a.IdentifyUIElements(context.Background(), "base64png", nil)
	if len(result.Elements) != 1 || result.Elements[0].Text != "OK" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Description != "a dialog" {
		t.Fatalf("unexpected description: %q", result.Description)
	}
}

func TestIdentifyUIElements_FallsBackToEmpty(t *testing.T) {
	a := newTestAdapter("not json", nil)
	result := a.IdentifyUIElements(context.Background(), "base64png", nil)
	if len(result.Elements) != 0 || result.Description != "Could not analyze" {
		t.Fatalf("unexpected fallback: %+v", result)
	}
}

func TestLearnNavigationPath_ParsesActions(t *testing.T) {
	a := newTestAdapter(`{"actions":[{"type":"click","data":{"text":"Settings"},"description":"click settings"}],"confidence":0.8}`, nil)
	result := a.LearnNavigationPath(context.Background(), "base64png", "open Settings", nil)
	if result.Confidence != 0.8 {
		t.Fatalf("unexpected confidence: %v", result.Confidence)
	}
	if len(result.Actions) != 1 || result.Actions[0].Data.Click == nil || result.Actions[0].Data.Click.Text != "Settings" {
		t.Fatalf("unexpected actions: %+v", result.Actions)
	}
}

func TestLearnNavigationPath_FallsBackOnUnparseable(t *testing.T) {
	a := newTestAdapter("no json here", nil)
	result := a.LearnNavigationPath(context.Background(), "base64png", "open Settings", nil)
	if len(result.Actions) != 0 || result.Confidence != 0 {
		t.Fatalf("expected empty fallback, got %+v", result)
	}
}

func TestVerifyScreenState_ParsesVerdict(t *testing.T) {
	a := newTestAdapter(`{"match":true,"confidence":0.9,"reason":"element visible"}`, nil)
	result := a.VerifyScreenState(context.Background(), "base64png", nil, []string{"Display"})
	if !result.Match || result.Confidence != 0.9 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyScreenState_FallsBackOnError(t *testing.T) {
	a := newTestAdapter("", context.DeadlineExceeded)
	result := a.VerifyScreenState(context.Background(), "base64png", nil, nil)
	if result.Match || result.Reason != "Failed to verify" {
		t.Fatalf("unexpected fallback result: %+v", result)
	}
}
