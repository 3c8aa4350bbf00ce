// Package vlm implements the four VLM prompt contracts of spec.md §4.C3:
// extractProgramName, identifyUIElements, learnNavigationPath, and
// verifyScreenState. Each is a system-prompt-plus-JSON-contract call in
// the style of the teacher's internal/roles/planner/planner.go (confidence
// threshold) and internal/roles/agentval/agentval.go (match/confidence/
// reason verdict shape), routed through the LLM Orchestrator's vision mode.
package vlm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haricheung/navbrain/internal/llmprovider"
	"github.com/haricheung/navbrain/internal/llmtext"
	"github.com/haricheung/navbrain/internal/types"
)

// Adapter calls the four VLM prompt contracts via an Orchestrator always in
// vision mode (spec.md: "The VLM adapter depends on the LLM Orchestrator
// using vision mode (stateless, one-shot)").
type Adapter struct {
	Orchestrator *llmprovider.Orchestrator
	log          *slog.Logger
}

// NewAdapter constructs a VLM Adapter around an already-configured Orchestrator.
func NewAdapter(orch *llmprovider.Orchestrator) *Adapter {
	return &Adapter{Orchestrator: orch, log: slog.Default().With("component", "vlm")}
}

func (a *Adapter) call(ctx context.Context, promptKind, systemPrompt, userText string, screenshotPNGBase64 string) (string, error) {
	start := time.Now()
	messages := []llmprovider.Message{
		{Role: llmprovider.RoleSystem, Content: llmprovider.Content{Text: systemPrompt}},
		{Role: llmprovider.RoleUser, Content: llmprovider.Content{
			Text:   userText,
			Images: []llmprovider.Image{{PNGBase64: screenshotPNGBase64}},
		}},
	}
	resp, err := a.Orchestrator.SendWithMode(ctx, llmprovider.ModeVision, messages, nil)
	elapsed := time.Since(start)
	if err != nil {
		a.log.Debug("vlm call failed", "prompt", promptKind, "elapsed", elapsed, "err", err)
		return "", err
	}
	a.log.Debug("vlm call completed", "prompt", promptKind, "elapsed", elapsed, "responseLen", len(resp.Content))
	return resp.Content, nil
}

func capStrings(texts []string, n int) []string {
	if len(texts) <= n {
		return texts
	}
	return texts[:n]
}

func capElements(elements []types.UIElement, n int) []types.UIElement {
	if len(elements) <= n {
		return elements
	}
	return elements[:n]
}

const extractProgramNameSystemPrompt = `You are identifying which application is currently in focus from a screenshot.
Respond with a single short token naming the program (e.g. "Finder", "Chrome", "Calculator").
Do not include punctuation, quotes, or explanation — just the name.`

// ExtractProgramName implements spec.md §4.C3's extractProgramName prompt.
// Falls back to "Unknown" on any error or empty response.
func (a *Adapter) ExtractProgramName(ctx context.Context, screenshotPNGBase64 string, ocrTexts []string) string {
	userText := "Identify the program shown in this screenshot."
	if texts := capStrings(ocrTexts, 20); len(texts) > 0 {
		userText += "\nVisible text (OCR): " + strings.Join(texts, ", ")
	}
	raw, err := a.call(ctx, "extractProgramName", extractProgramNameSystemPrompt, userText, screenshotPNGBase64)
	if err != nil {
		return types.UnknownProgramName
	}
	name := strings.Trim(strings.TrimSpace(raw), `"'`)
	if name == "" {
		return types.UnknownProgramName
	}
	// Models sometimes still wrap the token in a sentence; take the first line/word.
	if idx := strings.IndexAny(name, "\n."); idx != -1 {
		name = strings.TrimSpace(name[:idx])
	}
	if name == "" {
		return types.UnknownProgramName
	}
	return name
}

const identifyUIElementsSystemPrompt = `You are enumerating visible UI elements from a screenshot.
Respond with a single JSON object: {"elements": [{"kind": "button|input|text|image|link|menu|other", "text": "...", "bbox": {"x":0,"y":0,"w":0,"h":0}, "confidence": 0.0}], "description": "one sentence describing the screen"}.
Coordinates may be normalized to [0,1] or in screen pixels; be consistent within one response.`

// IdentifyResult is the parsed output of identifyUIElements.
type IdentifyResult struct {
	Elements    []types.UIElement `json:"elements"`
	Description string            `json:"description"`
}

// IdentifyUIElements implements spec.md §4.C3's identifyUIElements prompt.
// On failure, falls back to synthesizing elements from OCR boxes (kind=text)
// when OCR is available, else an empty result with a fixed description.
func (a *Adapter) IdentifyUIElements(ctx context.Context, screenshotPNGBase64 string, ocrElements []types.UIElement) IdentifyResult {
	capped := capElements(ocrElements, 50)
	userText := "Enumerate the visible UI elements in this screenshot."
	if len(capped) > 0 {
		if ocrJSON, err := json.Marshal(capped); err == nil {
			userText += "\nOCR-detected boxes (JSON, may be incomplete): " + string(ocrJSON)
		}
	}

	raw, err := a.call(ctx, "identifyUIElements", identifyUIElementsSystemPrompt, userText, screenshotPNGBase64)
	if err == nil {
		if obj := llmtext.ExtractJSONObject(raw); obj != "" {
			var result IdentifyResult
			if jsonErr := json.Unmarshal([]byte(obj), &result); jsonErr == nil {
				return result
			}
		}
	}

	if len(ocrElements) > 0 {
		synthesized := make([]types.UIElement, len(ocrElements))
		for i, e := range ocrElements {
			synthesized[i] = types.UIElement{Kind: types.KindText, Text: e.Text, BBox: e.BBox, Confidence: e.Confidence}
		}
		return IdentifyResult{Elements: synthesized}
	}
	return IdentifyResult{Elements: []types.UIElement{}, Description: "Could not analyze"}
}

const learnNavigationPathSystemPrompt = `You are synthesizing a sequence of input actions that will navigate from the screen shown to a target described by the user.
Respond with a single JSON object: {"actions": [{"type": "click|type|hotkey|wait|scroll", "data": {...action-specific fields...}, "description": "..."}], "confidence": 0.0}.
"confidence" reflects how certain you are this sequence reaches the target, in [0,1]. If you cannot determine a path, return {"actions": [], "confidence": 0}.
click data: {"x":0,"y":0} or {"text":"..."}, "button":"left|right|middle", "doubleClick": false.
type data: {"text":"...", "pressEnter": false, "delay_ms": 0}.
hotkey data: {"keys": ["..."], "modifiers": ["command","ctrl","alt","shift"]}.
wait data: {"milliseconds": 0}.
scroll data: {"amount": 0, "direction": "up|down"}.`

// LearnResult is the parsed output of learnNavigationPath, before the
// Brain Controller applies the learning-confidence threshold gate.
type LearnResult struct {
	Actions    []types.Action
	Confidence float64
}

type rawAction struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Description string          `json:"description"`
}

type rawLearnResponse struct {
	Actions    []rawAction `json:"actions"`
	Confidence float64     `json:"confidence"`
}

// LearnNavigationPath implements spec.md §4.C3's learnNavigationPath prompt.
// Falls back to {actions:[], confidence:0} on any parse failure, which the
// Brain Controller's learning threshold rejects outright.
func (a *Adapter) LearnNavigationPath(ctx context.Context, screenshotPNGBase64, targetDescription string, ocrSummary []string) LearnResult {
	userText := "Target: " + targetDescription
	if texts := capStrings(ocrSummary, 30); len(texts) > 0 {
		userText += "\nVisible text (OCR): " + strings.Join(texts, ", ")
	}

	raw, err := a.call(ctx, "learnNavigationPath", learnNavigationPathSystemPrompt, userText, screenshotPNGBase64)
	if err != nil {
		return LearnResult{Actions: nil, Confidence: 0}
	}
	obj := llmtext.ExtractJSONObject(raw)
	if obj == "" {
		return LearnResult{Actions: nil, Confidence: 0}
	}
	var parsed rawLearnResponse
	if jsonErr := json.Unmarshal([]byte(obj), &parsed); jsonErr != nil {
		return LearnResult{Actions: nil, Confidence: 0}
	}

	actions := make([]types.Action, 0, len(parsed.Actions))
	for _, ra := range parsed.Actions {
		data, convErr := toActionData(ra)
		if convErr != nil {
			a.log.Debug("skipping unparseable learned action", "type", ra.Type, "err", convErr)
			continue
		}
		actions = append(actions, types.Action{
			Id:             uuid.NewString(),
			Data:           data,
			Description:    ra.Description,
			RetryOnFailure: true,
		})
	}
	return LearnResult{Actions: actions, Confidence: parsed.Confidence}
}

func toActionData(ra rawAction) (types.ActionData, error) {
	switch types.ActionKind(ra.Type) {
	case types.ActionClick:
		var d types.ClickData
		if err := json.Unmarshal(ra.Data, &d); err != nil {
			return types.ActionData{}, err
		}
		if d.Button == "" {
			d.Button = types.ButtonLeft
		}
		return types.ActionData{Kind: types.ActionClick, Click: &d}, nil
	case types.ActionType:
		var d types.TypeData
		if err := json.Unmarshal(ra.Data, &d); err != nil {
			return types.ActionData{}, err
		}
		return types.ActionData{Kind: types.ActionType, Type: &d}, nil
	case types.ActionHotkey:
		var d types.HotkeyData
		if err := json.Unmarshal(ra.Data, &d); err != nil {
			return types.ActionData{}, err
		}
		return types.ActionData{Kind: types.ActionHotkey, Hotkey: &d}, nil
	case types.ActionWait:
		var d types.WaitData
		if err := json.Unmarshal(ra.Data, &d); err != nil {
			return types.ActionData{}, err
		}
		return types.ActionData{Kind: types.ActionWait, Wait: &d}, nil
	case types.ActionScroll:
		var d types.ScrollData
		if err := json.Unmarshal(ra.Data, &d); err != nil {
			return types.ActionData{}, err
		}
		return types.ActionData{Kind: types.ActionScroll, Scroll: &d}, nil
	default:
		return types.ActionData{}, errUnknownActionType(ra.Type)
	}
}

type errUnknownActionType string

func (e errUnknownActionType) Error() string { return "unknown action type: " + string(e) }

const verifyScreenStateSystemPrompt = `You are verifying whether a screenshot matches an expected screen state.
Respond with a single JSON object: {"match": true|false, "confidence": 0.0, "reason": "..."}.
"confidence" is your certainty in [0,1]. Be conservative: only report match=true when the expected elements or text are clearly visible.`

// VerifyResult is the parsed output of verifyScreenState.
type VerifyResult struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// VerifyScreenState implements spec.md §4.C3's verifyScreenState prompt.
// Falls back to {match:false, confidence:0, reason:"Failed to verify"}.
func (a *Adapter) VerifyScreenState(ctx context.Context, screenshotPNGBase64 string, expectedElements []types.UIElement, expectedTexts []string) VerifyResult {
	fallback := VerifyResult{Match: false, Confidence: 0, Reason: "Failed to verify"}

	capped := capElements(expectedElements, 10)
	userText := "Does this screenshot match the expected state?"
	if len(capped) > 0 {
		if expJSON, err := json.Marshal(capped); err == nil {
			userText += "\nExpected elements: " + string(expJSON)
		}
	}
	if len(expectedTexts) > 0 {
		userText += "\nExpected text: " + strings.Join(expectedTexts, ", ")
	}

	raw, err := a.call(ctx, "verifyScreenState", verifyScreenStateSystemPrompt, userText, screenshotPNGBase64)
	if err != nil {
		return fallback
	}
	obj := llmtext.ExtractJSONObject(raw)
	if obj == "" {
		return fallback
	}
	var parsed VerifyResult
	if jsonErr := json.Unmarshal([]byte(obj), &parsed); jsonErr != nil {
		return fallback
	}
	return parsed
}
