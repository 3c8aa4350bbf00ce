package brain

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haricheung/navbrain/internal/actionexec"
	"github.com/haricheung/navbrain/internal/graph"
	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/shadowdom"
	"github.com/haricheung/navbrain/internal/statehash"
	"github.com/haricheung/navbrain/internal/types"
	"github.com/haricheung/navbrain/internal/vlm"
)

// verificationSettle, actionRetryDelay, closeAppSettle are the fixed
// inter-step sleeps spec.md §4.C8 and §4.C7 name explicitly.
const (
	verificationSettle = 500 * time.Millisecond
	actionRetryDelay   = time.Second
	closeAppSettle     = 500 * time.Millisecond

	// learningConfidenceThreshold and the empty-actions check together form
	// spec.md §4.C8's "Learning threshold".
	learningConfidenceThreshold = 0.3
	// verificationConfidenceThreshold is the VLM match confidence floor for
	// the per-action verification step (spec.md §4.C8 step 4).
	verificationConfidenceThreshold = 0.5
)

// Brain is the top-level orchestrator: identify-current-node →
// find-or-learn path → execute-with-verification → update graph (spec.md
// §4.C8). All public entry points are serialized behind one mutex, matching
// spec.md §5's single-writer cooperative scheduling model.
type Brain struct {
	Graph        *graph.Graph
	VLM          *vlm.Adapter
	Executor     *actionexec.Executor
	ShadowHolder *shadowdom.Holder
	ShadowBuild  *shadowdom.Builder
	OCR          perception.OCR
	Capture      func(ctx context.Context) ([]byte, error)

	now   func() time.Time
	sleep func(time.Duration)
	mu    sync.Mutex
	log   *slog.Logger
}

// New constructs a Brain around its already-configured components.
func New(g *graph.Graph, vlmAdapter *vlm.Adapter, executor *actionexec.Executor, shadowBuild *shadowdom.Builder, ocr perception.OCR, capture func(ctx context.Context) ([]byte, error)) *Brain {
	if capture == nil {
		capture = perception.CaptureScreenBuffer
	}
	return &Brain{
		Graph:        g,
		VLM:          vlmAdapter,
		Executor:     executor,
		ShadowHolder: &shadowdom.Holder{},
		ShadowBuild:  shadowBuild,
		OCR:          ocr,
		Capture:      capture,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        time.Sleep,
		log:          slog.Default().With("component", "brain"),
	}
}

// Initialize ensures the Spotlight bootstrap node exists (invariant I5 is
// already enforced by graph.Load; this is the public no-op entry point
// spec.md §4.C8 names so callers have an explicit lifecycle hook).
func (b *Brain) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return nil
}

// IdentifyCurrentNode runs the capture → OCR → VLM → hash pipeline
// (component C1→C2→C3) to produce a NodeId, creates or updates the
// corresponding Node, rebuilds the ShadowDOM, and records the current
// position. Returns (nil, ErrIdentificationFailed) if capture fails —
// recoverable at this boundary (spec.md §7.2).
func (b *Brain) IdentifyCurrentNode(ctx context.Context) (*types.NodeId, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identifyCurrentNodeLocked(ctx)
}

func (b *Brain) identifyCurrentNodeLocked(ctx context.Context) (*types.NodeId, error) {
	pngBytes, err := b.Capture(ctx)
	if err != nil {
		b.log.Warn("capture failed during identification", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrIdentificationFailed, err)
	}
	analysis, ocrOK := perception.AnalyzeBestEffort(ctx, b.OCR, pngBytes, b.log)

	screenshotB64 := base64.StdEncoding.EncodeToString(pngBytes)
	var ocrTexts []string
	if ocrOK {
		ocrTexts = textsOf(analysis.Elements)
	}
	programName := b.VLM.ExtractProgramName(ctx, screenshotB64, ocrTexts)
	identify := b.VLM.IdentifyUIElements(ctx, screenshotB64, analysis.Elements)

	screen, screenErr := perception.CurrentScreenSize()
	elements := identify.Elements
	if screenErr == nil {
		elements = perception.NormalizeElements(elements, screen)
	}
	stateHash := statehash.HashElements(elements)
	id := types.NodeId{ProgramName: programName, StateHash: stateHash}

	now := b.now()
	if existing, ok := b.Graph.GetNode(id); ok {
		existing.LastVisitedAt = now
		existing.VisitCount++
		existing.UIElements = elements
		existing.Description = identify.Description
		if screenshotB64 != "" {
			existing.Screenshot = screenshotB64
		}
		if err := b.Graph.UpdateNode(existing); err != nil {
			return nil, fmt.Errorf("navbrain: update node: %w", err)
		}
	} else {
		node := types.Node{
			Id:            id,
			UIElements:    elements,
			Description:   identify.Description,
			CreatedAt:     now,
			LastVisitedAt: now,
			VisitCount:    1,
		}
		if err := b.Graph.AddNode(node); err != nil {
			return nil, fmt.Errorf("navbrain: add node: %w", err)
		}
	}

	if err := b.Graph.SetCurrentNodeId(&id); err != nil {
		return nil, fmt.Errorf("navbrain: set current node: %w", err)
	}

	// Build the ShadowDOM from the capture/OCR/identify work already done
	// above rather than repeating it via shadowdom.Builder.Construct (which
	// would re-capture and re-call the VLM) — identification and ShadowDOM
	// construction share one capture per spec.md §4.C5's pipeline, they are
	// just two different consumers of its result.
	dom := &types.ShadowDOM{
		NodeId:         id,
		CapturedAt:     now,
		Screenshot:     screenshotB64,
		UIElements:     elements,
		VLMDescription: identify.Description,
		InstanceHash:   stateHash,
	}
	if ocrOK {
		dom.OCRFullText = analysis.FullText
	}
	b.ShadowHolder.Set(dom)

	return &id, nil
}

// AddNode exposes the Navigation Graph's addNode operation directly (spec.md
// §4.C8's public entry point list), for callers recording a Node outside
// the identify pipeline (e.g. manually-authored Paths).
func (b *Brain) AddNode(node types.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Graph.AddNode(node)
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "open": {}, "go": {},
	"in": {}, "on": {}, "is": {}, "and": {}, "pane": {}, "tab": {}, "for": {},
	"navigate": {}, "click": {}, "please": {},
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*`)

// deriveExpectedText extracts a small set of salient keywords from a
// natural-language target description, for use as Validation.ExpectedText
// substring checks. Not part of spec.md's four VLM prompt contracts — the
// learnNavigationPath contract returns only {actions, confidence} — so this
// is a supplemented heuristic (see DESIGN.md) rather than a VLM call,
// keeping with scenario S3's "one vision-model call" budget for learning.
func deriveExpectedText(target string) []string {
	words := wordRe.FindAllString(target, -1)
	out := make([]string, 0, len(words))
	seen := map[string]struct{}{}
	for _, w := range words {
		lw := strings.ToLower(w)
		if _, stop := stopwords[lw]; stop {
			continue
		}
		if len(lw) < 3 {
			continue
		}
		if _, dup := seen[lw]; dup {
			continue
		}
		seen[lw] = struct{}{}
		out = append(out, w)
	}
	return out
}

// LearnPath invokes the VLM's learnNavigationPath prompt (C3) for a new
// action sequence from `from` toward `target`, applying the learning
// threshold (spec.md §4.C8): reject actions=[] or confidence<0.3. The
// returned Path's ToNodeId is the "pending" placeholder (spec.md's
// "Placeholder rule") and is never persisted by this method — navigateTo
// commits it after successful execution and re-identification.
func (b *Brain) LearnPath(ctx context.Context, from types.NodeId, target string) (*types.Path, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.learnPathLocked(ctx, from, target)
}

func (b *Brain) learnPathLocked(ctx context.Context, from types.NodeId, target string) (*types.Path, error) {
	dom := b.ShadowHolder.Current()
	var screenshot string
	var ocrSummary []string
	if dom != nil {
		screenshot = dom.Screenshot
		ocrSummary = textsOf(dom.UIElements)
	}

	result := b.VLM.LearnNavigationPath(ctx, screenshot, target, ocrSummary)
	if len(result.Actions) == 0 || result.Confidence < learningConfidenceThreshold {
		return nil, fmt.Errorf("%w: %d actions, confidence %.2f", ErrLearningRejected, len(result.Actions), result.Confidence)
	}

	path := &types.Path{
		Id:                uuid.NewString(),
		FromNodeId:        from,
		ToNodeId:          types.NodeId{ProgramName: types.UnknownProgramName, StateHash: types.PendingStateHash},
		TargetDescription: target,
		Actions:           result.Actions,
		Validation: types.Validation{
			ExpectedElements: []types.UIElement{},
			ExpectedText:     deriveExpectedText(target),
			TimeoutMs:        types.DefaultTimeoutMs,
		},
		VerificationHistory: []types.PathVerification{},
		Metadata:            types.PathMetadata{LearnedBy: types.LearnedByVLM},
	}
	return path, nil
}

// ExecutePath drives the execute-with-verification loop of spec.md §4.C8
// states S1–S5 over an already-built Path (actions in array order, ~500ms
// settle between each, one retry on ActionFailed when RetryOnFailure, OCR
// substring + VLM match verification after every action). It mutates
// path.VerificationHistory and path.Metadata in place and returns whether
// the full sequence succeeded. It does NOT persist the path — callers
// (navigateTo, or a direct replay caller) decide when to call Graph.AddPath/
// UpdatePath, since a freshly-learned path's ToNodeId is still pending until
// the caller re-identifies (spec.md's "Placeholder rule", property P6).
func (b *Brain) ExecutePath(ctx context.Context, path *types.Path) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executePathLocked(ctx, path)
}

func (b *Brain) executePathLocked(ctx context.Context, path *types.Path) (bool, string) {
	start := b.now()
	timeout := time.Duration(path.Validation.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(types.DefaultTimeoutMs) * time.Millisecond
	}

	ok, message := b.runActions(ctx, path, start, timeout)

	duration := float64(b.now().Sub(start).Milliseconds())
	path.Metadata = graph.ApplyExecutionOutcome(path.Metadata, ok, duration, b.now())
	return ok, message
}

func (b *Brain) runActions(ctx context.Context, path *types.Path, start time.Time, timeout time.Duration) (bool, string) {
	for i, action := range path.Actions {
		if b.now().Sub(start) > timeout {
			b.appendVerification(path, i, false, nil, nil, "timeout")
			return false, "timeout"
		}

		if err := b.Executor.Dispatch(ctx, action); err != nil {
			if action.RetryOnFailure {
				b.sleep(actionRetryDelay)
				err = b.Executor.Dispatch(ctx, action)
			}
			if err != nil {
				reason := fmt.Sprintf("%v: %v", ErrActionFailed, err)
				b.appendVerification(path, i, false, nil, nil, reason)
				return false, reason
			}
		}

		b.sleep(verificationSettle)
		dom, domErr := b.ShadowBuild.Construct(ctx, path.FromNodeId)
		if domErr != nil {
			b.log.Debug("shadowdom rebuild failed mid-path", "err", domErr)
		} else {
			b.ShadowHolder.Set(dom)
		}

		ok, ocrEv, vlmEv, reason := b.verifyStep(ctx, path.Validation, dom)
		b.appendVerification(path, i, ok, ocrEv, vlmEv, reason)
		if !ok {
			return false, reason
		}
	}
	return true, ""
}

// verifyStep implements spec.md §4.C8's "Per-action verification" steps
// 3–4: expectedText substring checks against the ShadowDOM's OCR elements,
// then (if expectedElements is non-empty) a verifyScreenState VLM call
// requiring match && confidence >= 0.5.
func (b *Brain) verifyStep(ctx context.Context, v types.Validation, dom *types.ShadowDOM) (bool, *types.OCREvidence, *types.VLMEvidence, string) {
	if dom == nil {
		if len(v.ExpectedText) == 0 && len(v.ExpectedElements) == 0 {
			return true, nil, nil, ""
		}
		return false, nil, nil, "ShadowDOM unavailable for verification"
	}

	if len(v.ExpectedText) > 0 {
		haystacks := make([]string, 0, len(dom.UIElements)+1)
		if dom.OCRFullText != "" {
			haystacks = append(haystacks, dom.OCRFullText)
		}
		haystacks = append(haystacks, textsOf(dom.UIElements)...)
		for _, want := range v.ExpectedText {
			if !containsSubstringCaseInsensitive(haystacks, want) {
				ev := &types.OCREvidence{FullText: dom.OCRFullText, ElementsFound: len(dom.UIElements)}
				return false, ev, nil, "Expected text not found: " + want
			}
		}
	}

	ocrEv := &types.OCREvidence{FullText: dom.OCRFullText, ElementsFound: len(dom.UIElements)}

	if len(v.ExpectedElements) > 0 {
		result := b.VLM.VerifyScreenState(ctx, dom.Screenshot, v.ExpectedElements, v.ExpectedText)
		vlmEv := &types.VLMEvidence{Match: result.Match, Confidence: result.Confidence, Reason: result.Reason}
		if !result.Match || result.Confidence < verificationConfidenceThreshold {
			return false, ocrEv, vlmEv, result.Reason
		}
		return true, ocrEv, vlmEv, ""
	}

	return true, ocrEv, nil, ""
}

func (b *Brain) appendVerification(path *types.Path, actionIndex int, success bool, ocrEv *types.OCREvidence, vlmEv *types.VLMEvidence, failureReason string) {
	path.VerificationHistory = append(path.VerificationHistory, types.PathVerification{
		Timestamp:     b.now(),
		Success:       success,
		ActionIndex:   actionIndex,
		OCRResult:     ocrEv,
		VLMResult:     vlmEv,
		FailureReason: failureReason,
	})
}

func containsSubstringCaseInsensitive(haystacks []string, needle string) bool {
	n := strings.ToLower(needle)
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), n) {
			return true
		}
	}
	return false
}

// NavigateTo implements the full spec.md §4.C8 state machine: identify the
// current node, find-or-learn a Path to target, execute it with
// verification, and on success commit the learned Path (patching its
// placeholder ToNodeId) to the graph.
func (b *Brain) NavigateTo(ctx context.Context, target string) (ok bool, current *types.NodeId, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	from, err := b.identifyCurrentNodeLocked(ctx)
	if err != nil {
		return false, nil, err.Error()
	}

	if existing, found := b.Graph.FindPathByTarget(*from, target); found {
		ok, msg := b.executePathLocked(ctx, &existing)
		if saveErr := b.Graph.UpdatePath(existing); saveErr != nil {
			b.log.Warn("failed to persist replayed path metadata", "err", saveErr)
		}
		if !ok {
			return false, from, msg
		}
		reidentified, idErr := b.identifyCurrentNodeLocked(ctx)
		if idErr != nil {
			return true, from, "navigated (could not re-identify destination)"
		}
		return true, reidentified, "navigated via existing path"
	}

	learned, err := b.learnPathLocked(ctx, *from, target)
	if err != nil {
		return false, from, err.Error()
	}

	ok, msg := b.executePathLocked(ctx, learned)
	if !ok {
		return false, from, msg
	}

	dest, err := b.identifyCurrentNodeLocked(ctx)
	if err != nil {
		return false, from, fmt.Sprintf("%v: could not re-identify destination after successful execution", ErrIdentificationFailed)
	}
	learned.ToNodeId = *dest
	if err := b.Graph.AddPath(*learned); err != nil {
		return false, dest, fmt.Sprintf("navigated but failed to persist path: %v", err)
	}
	return true, dest, "learned and executed new path"
}

// CloseCurrentApp is the external-caller helper spec.md §4.C8 names:
// Hotkey(command+q), settle 500ms. Not part of navigation itself.
func (b *Brain) CloseCurrentApp(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	action := types.Action{
		Id: uuid.NewString(),
		Data: types.ActionData{
			Kind: types.ActionHotkey,
			Hotkey: &types.HotkeyData{
				Key:       "q",
				Modifiers: []types.Modifier{types.ModCommand},
			},
		},
	}
	if err := b.Executor.Dispatch(ctx, action); err != nil {
		return fmt.Errorf("%w: %v", ErrActionFailed, err)
	}
	b.sleep(closeAppSettle)
	return nil
}

// LaunchApp implements the canonical launch_app tool (spec.md §6): Hotkey
// (command+space) → Type(appName) → Enter, settle, then re-identify.
func (b *Brain) LaunchApp(ctx context.Context, appName string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	actions := []types.Action{
		{Id: uuid.NewString(), Data: types.ActionData{Kind: types.ActionHotkey, Hotkey: &types.HotkeyData{Key: "space", Modifiers: []types.Modifier{types.ModCommand}}}},
		{Id: uuid.NewString(), Data: types.ActionData{Kind: types.ActionType, Type: &types.TypeData{Text: appName, PressEnter: true}}},
	}
	for _, action := range actions {
		if err := b.Executor.Dispatch(ctx, action); err != nil {
			return false, fmt.Errorf("%w: %v", ErrActionFailed, err)
		}
	}
	b.sleep(verificationSettle)
	if _, err := b.identifyCurrentNodeLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// GetCurrentNodeResult is the supplemented return shape for the
// get_current_node tool surface (spec.md §6; graphStats fields are
// supplemented in SPEC_FULL.md since spec.md leaves them undefined).
type GetCurrentNodeResult struct {
	CurrentNode    *types.NodeId
	AvailablePaths []types.Path
	GraphStats     graph.Stats
}

// GetCurrentNode implements the get_current_node tool surface.
func (b *Brain) GetCurrentNode() GetCurrentNodeResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.Graph.CurrentNodeId()
	var paths []types.Path
	if current != nil {
		paths = b.Graph.GetPathsFrom(*current)
	}
	return GetCurrentNodeResult{CurrentNode: current, AvailablePaths: paths, GraphStats: b.Graph.Stats()}
}

func textsOf(elements []types.UIElement) []string {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		if e.Text != "" {
			out = append(out, e.Text)
		}
	}
	return out
}

