package brain

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/haricheung/navbrain/internal/actionexec"
	"github.com/haricheung/navbrain/internal/graph"
	"github.com/haricheung/navbrain/internal/llmprovider"
	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/shadowdom"
	"github.com/haricheung/navbrain/internal/statehash"
	"github.com/haricheung/navbrain/internal/types"
	"github.com/haricheung/navbrain/internal/vlm"
)

// sequencedProvider returns one scripted Response per call, in order,
// following the teacher's vlm_test.go scriptedProvider pattern but keyed by
// call sequence rather than prompt kind, since the Brain issues several VLM
// calls of different kinds per navigateTo invocation.
type sequencedProvider struct {
	responses []string
	calls     int
}

func (s *sequencedProvider) next() string {
	if s.calls >= len(s.responses) {
		s.calls++
		return "{}"
	}
	r := s.responses[s.calls]
	s.calls++
	return r
}

func (s *sequencedProvider) Name() string { return "sequenced" }
func (s *sequencedProvider) SupportsTools() bool { return false }
func (s *sequencedProvider) SupportsImages() bool { return true }
func (s *sequencedProvider) SupportsStreaming() bool { return false }
func (s *sequencedProvider) AddUserMessage(llmprovider.Content) {}
func (s *sequencedProvider) AddAssistantMessage(string) {}
func (s *sequencedProvider) AddToolResult(string, string) {}
func (s *sequencedProvider) ClearHistory() {}
func (s *sequencedProvider) Send(context.Context, []llmprovider.Tool) (llmprovider.Response, error) {
	return llmprovider.Response{}, nil
}
func (s *sequencedProvider) Stream(context.Context, []llmprovider.Tool) (<-chan llmprovider.Chunk, error) {
	return nil, nil
}
func (s *sequencedProvider) SendOnce(context.Context, []llmprovider.Message, []llmprovider.Tool) (llmprovider.Response, error) {
	return llmprovider.Response{Content: s.next()}, nil
}

func fixedCapture(ctx context.Context) ([]byte, error) { return []byte("png-bytes"), nil }

func noSleep(time.Duration) {}

type noopInjector struct{}

func (noopInjector) ClickAt(ctx context.Context, x, y float64, button types.ClickButton, double bool) error {
	return nil
}
func (noopInjector) TypeText(ctx context.Context, text string, delayMs int) error { return nil }
func (noopInjector) PressKey(ctx context.Context, key string, modifiers []types.Modifier) error {
	return nil
}
func (noopInjector) Scroll(ctx context.Context, amount int, direction types.ScrollDirection) error {
	return nil
}

// newTestBrain wires a Brain around a temp-dir graph, a NullOCR (no OCR
// backend), a no-op injector, and a sequenced VLM provider driving every
// identify/learn/verify call in turn.
func newTestBrain(t *testing.T, responses []string) (*Brain, *sequencedProvider) {
	t.Helper()
	dir := t.TempDir()
	g, err := graph.Load(filepath.Join(dir, "navigation.json"))
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}

	provider := &sequencedProvider{responses: responses}
	orch := llmprovider.NewOrchestrator(provider, nil, provider)
	vlmAdapter := vlm.NewAdapter(orch)

	ocr := perception.NullOCR{}
	shadowBuild := shadowdom.NewBuilder(ocr, vlmAdapter, fixedCapture)

	injector := &noopInjector{}
	executor := actionexec.New(injector, ocr, fixedCapture, noSleep)

	b := New(g, vlmAdapter, executor, shadowBuild, ocr, fixedCapture)
	b.sleep = noSleep
	tick := 0
	b.now = func() time.Time {
		tick++
		return time.Date(2026, 1, 1, 0, 0, tick, 0, time.UTC)
	}
	return b, provider
}

// emptyElementsHash is the stateHash produced by identifying a screen whose
// identifyUIElements response carries no elements — the recurring "Finder"
// node identity across these tests.
func emptyElementsHash() string {
	return statehash.HashElements(nil)
}

func TestIdentifyCurrentNode_CreatesNodeAndShadowDOM(t *testing.T) {
	b, _ := newTestBrain(t, []string{
		`Finder`,                                      // extractProgramName
		`{"elements":[],"description":"the desktop"}`, // identifyUIElements
	})
	id, err := b.IdentifyCurrentNode(context.Background())
	if err != nil {
		t.Fatalf("IdentifyCurrentNode: %v", err)
	}
	if id.ProgramName != "Finder" {
		t.Fatalf("expected programName Finder, got %q", id.ProgramName)
	}
	if b.ShadowHolder.Current() == nil {
		t.Fatal("expected a ShadowDOM to be set")
	}
	node, ok := b.Graph.GetNode(*id)
	if !ok {
		t.Fatal("expected node to be persisted")
	}
	if node.VisitCount != 1 {
		t.Fatalf("expected visitCount 1, got %d", node.VisitCount)
	}
}

func TestIdentifyCurrentNode_ReidentifyIncrementsVisitCount(t *testing.T) {
	b, _ := newTestBrain(t, []string{
		`Finder`, `{"elements":[],"description":"d"}`,
		`Finder`, `{"elements":[],"description":"d"}`,
	})
	id1, err := b.IdentifyCurrentNode(context.Background())
	if err != nil {
		t.Fatalf("first identify: %v", err)
	}
	if _, err := b.IdentifyCurrentNode(context.Background()); err != nil {
		t.Fatalf("second identify: %v", err)
	}
	node, ok := b.Graph.GetNode(*id1)
	if !ok || node.VisitCount != 2 {
		t.Fatalf("expected visitCount 2, got ok=%v count=%d", ok, node.VisitCount)
	}
}

func TestLearnPath_RejectsLowConfidence(t *testing.T) {
	b, _ := newTestBrain(t, []string{
		`Finder`, `{"elements":[],"description":"d"}`,
		`{"actions":[{"type":"click","data":{"text":"Settings"}}],"confidence":0.1}`,
	})
	from, err := b.IdentifyCurrentNode(context.Background())
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	_, err = b.LearnPath(context.Background(), *from, "open Settings")
	if err == nil {
		t.Fatal("expected learning to be rejected for low confidence")
	}
}

func TestLearnPath_RejectsEmptyActions(t *testing.T) {
	b, _ := newTestBrain(t, []string{
		`Finder`, `{"elements":[],"description":"d"}`,
		`{"actions":[],"confidence":0.9}`,
	})
	from, err := b.IdentifyCurrentNode(context.Background())
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	_, err = b.LearnPath(context.Background(), *from, "open Settings")
	if err == nil {
		t.Fatal("expected learning to be rejected for empty actions")
	}
}

func TestNavigateTo_LearnsExecutesAndPersistsPath(t *testing.T) {
	b, _ := newTestBrain(t, []string{
		`Finder`, `{"elements":[],"description":"d"}`, // 1,2: initial identify
		`{"actions":[{"type":"click","data":{"x":10,"y":10}}],"confidence":0.9}`, // 3: learn
		`{"elements":[{"kind":"text","text":"Settings panel"}],"description":"d"}`, // 4: mid-path ShadowDOM rebuild, must surface "Settings"
		`Settings`, `{"elements":[],"description":"d"}`, // 5,6: re-identify destination
	})
	ok, current, message := b.NavigateTo(context.Background(), "open Settings")
	if !ok {
		t.Fatalf("expected navigateTo to succeed, got message=%q", message)
	}
	if current == nil || current.ProgramName != "Settings" {
		t.Fatalf("expected destination programName Settings, got %+v", current)
	}

	from := types.NodeId{ProgramName: "Finder", StateHash: emptyElementsHash()}
	paths := b.Graph.GetPathsFrom(from)
	if len(paths) != 1 {
		t.Fatalf("expected one persisted path, got %d", len(paths))
	}
	if paths[0].ToNodeId.IsPending() {
		t.Fatal("persisted path must not have a pending destination")
	}
	if paths[0].Metadata.UsageCount != 1 {
		t.Fatalf("expected usageCount 1, got %d", paths[0].Metadata.UsageCount)
	}
	if paths[0].Metadata.SuccessRate != 1 {
		t.Fatalf("expected successRate 1, got %v", paths[0].Metadata.SuccessRate)
	}
}

func TestNavigateTo_SecondCallReplaysExistingPath(t *testing.T) {
	b, provider := newTestBrain(t, []string{
		`Finder`, `{"elements":[],"description":"d"}`,
		`{"actions":[{"type":"click","data":{"x":10,"y":10}}],"confidence":0.9}`,
		`{"elements":[{"kind":"text","text":"Settings panel"}],"description":"d"}`,
		`Settings`, `{"elements":[],"description":"d"}`,
		// second navigateTo call: identify (still Finder, since the
		// injector/capture are fixed no-ops), replay, mid-path rebuild,
		// re-identify — no learnNavigationPath call anywhere in here.
		`Finder`, `{"elements":[],"description":"d"}`,
		`{"elements":[{"kind":"text","text":"Settings panel"}],"description":"d"}`,
		`Settings`, `{"elements":[],"description":"d"}`,
	})
	ok1, _, msg1 := b.NavigateTo(context.Background(), "open Settings")
	if !ok1 {
		t.Fatalf("first navigateTo failed: %s", msg1)
	}

	from := types.NodeId{ProgramName: "Finder", StateHash: emptyElementsHash()}
	if paths := b.Graph.GetPathsFrom(from); len(paths) != 1 {
		t.Fatalf("expected exactly one path after first call, got %d", len(paths))
	}

	ok2, _, msg2 := b.NavigateTo(context.Background(), "open Settings")
	if !ok2 {
		t.Fatalf("second navigateTo failed: %s", msg2)
	}
	if paths := b.Graph.GetPathsFrom(from); len(paths) != 1 {
		t.Fatalf("expected replay to leave exactly one path, got %d", len(paths))
	}
	if paths := b.Graph.GetPathsFrom(from); paths[0].Metadata.UsageCount != 2 {
		t.Fatalf("expected usageCount 2 after replay, got %d", paths[0].Metadata.UsageCount)
	}
	if provider.calls != 11 {
		t.Fatalf("expected exactly 11 VLM calls across both navigations (no relearning), got %d", provider.calls)
	}
}

func TestExecutePath_VerificationFailureRecordsReason(t *testing.T) {
	b, _ := newTestBrain(t, []string{
		`{"elements":[],"description":"d"}`, // mid-path ShadowDOM rebuild
	})
	path := &types.Path{
		Id:         "p1",
		FromNodeId: types.NodeId{ProgramName: "Finder", StateHash: "h1"},
		ToNodeId:   types.NodeId{ProgramName: "Settings", StateHash: "h2"},
		Actions: []types.Action{
			{Id: "a1", Data: types.ActionData{Kind: types.ActionClick, Click: &types.ClickData{X: floatPtr(1), Y: floatPtr(1)}}},
		},
		Validation: types.Validation{ExpectedText: []string{"Display"}, TimeoutMs: types.DefaultTimeoutMs},
	}
	ok, message := b.ExecutePath(context.Background(), path)
	if ok {
		t.Fatal("expected execution to fail verification (no 'Display' text ever appears)")
	}
	if message == "" {
		t.Fatal("expected a failure message")
	}
	if len(path.VerificationHistory) != 1 || path.VerificationHistory[0].Success {
		t.Fatalf("expected one failed verification entry, got %+v", path.VerificationHistory)
	}
	if path.Metadata.UsageCount != 1 || path.Metadata.SuccessRate != 0 {
		t.Fatalf("expected usageCount 1 successRate 0, got %+v", path.Metadata)
	}
}

func floatPtr(f float64) *float64 { return &f }
