package shadowdom

import (
	"context"
	"testing"

	"github.com/haricheung/navbrain/internal/llmprovider"
	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/types"
	"github.com/haricheung/navbrain/internal/vlm"
)

type scriptedProvider struct {
	content string
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
	return llmprovider.Response{Content: s.content}, nil
}
func (s *scriptedProvider) Stream(context.Context, []llmprovider.Tool) (<-chan llmprovider.Chunk, error) {
	return nil, nil
}
func (s *scriptedProvider) SendOnce(context.Context, []llmprovider.Message, []llmprovider.Tool) (llmprovider.Response, error) {
	return llmprovider.Response{Content: s.content}, nil
}

func TestBuilder_Construct(t *testing.T) {
	provider := &scriptedProvider{content: `{"elements":[{"kind":"text","text":"Hello"}],"description":"a window"}`}
	adapter := vlm.NewAdapter(llmprovider.NewOrchestrator(provider, nil, provider))

	capture := func(ctx context.Context) ([]byte, error) { return []byte("fake-png-bytes"), nil }
	builder := NewBuilder(perception.NullOCR{}, adapter, capture)

	nodeId := types.NodeId{ProgramName: "Finder", StateHash: "abc"}
	dom, err := builder.Construct(context.Background(), nodeId)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dom.NodeId != nodeId {
		t.Fatalf("expected nodeId to be set, got %+v", dom.NodeId)
	}
	if len(dom.UIElements) != 1 || dom.UIElements[0].Text != "Hello" {
		t.Fatalf("unexpected elements: %+v", dom.UIElements)
	}
	if dom.InstanceHash == "" {
		t.Fatalf("expected a non-empty instance hash")
	}
	if dom.OCRFullText != "" {
		t.Fatalf("expected empty OCR text with NullOCR, got %q", dom.OCRFullText)
	}
}

func TestHolder_SetAndCurrent(t *testing.T) {
	h := &Holder{}
	if h.Current() != nil {
		t.Fatalf("expected nil ShadowDOM before any Set")
	}
	dom := &types.ShadowDOM{NodeId: types.NodeId{ProgramName: "Finder", StateHash: "x"}}
	h.Set(dom)
	if h.Current() != dom {
		t.Fatalf("expected Current() to return the set ShadowDOM")
	}
}
