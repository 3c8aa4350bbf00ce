// Package actionexec dispatches a single Action against the OS input
// subsystem (spec.md §4.C7). Dispatch is an exhaustive switch over the
// ActionData tagged variant, generalized from the teacher's
// internal/roles/executor/executor.go single-tool-per-turn switch — here
// there is no LLM turn loop, just one deterministic dispatch per call, with
// the teacher's bounded-retry idiom carried over as the "settle, re-execute
// once on ActionFailed" rule spec.md §4.C8 state S3 describes.
package actionexec

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/statehash"
	"github.com/haricheung/navbrain/internal/types"
)

// clickSettle, typeEnterDelay, typeSettle and the hotkey* durations are the
// fixed inter-step settle durations spec.md §4.C7 names per action variant.
const (
	clickSettle       = 200 * time.Millisecond
	typeEnterDelay    = 100 * time.Millisecond
	typeSettle        = 200 * time.Millisecond
	hotkeyPreRelease  = 50 * time.Millisecond
	hotkeyInterKey    = 20 * time.Millisecond
	hotkeyPostPress   = 10 * time.Millisecond
)

// Keyboard is the minimal keyboard-injection surface the Executor drives
// (spec.md §6 "Action-execution interface consumed by the Brain").
type Keyboard interface {
	TypeText(ctx context.Context, text string, delayMs int) error
	PressKey(ctx context.Context, key string, modifiers []types.Modifier) error
}

// Mouse is the minimal mouse-injection surface the Executor drives.
type Mouse interface {
	ClickAt(ctx context.Context, x, y float64, button types.ClickButton, doubleClick bool) error
	Scroll(ctx context.Context, amount int, direction types.ScrollDirection) error
}

// Injector is the combined input-injection backend. Concrete
// implementations are swappable (spec.md §6: "specified only by interface");
// this package ships one, AppleScriptInjector (see applescript_injector.go).
type Injector interface {
	Keyboard
	Mouse
}

// ErrNoMatchingElement is returned when a text-based Click finds no OCR
// element whose text contains the query.
var ErrNoMatchingElement = fmt.Errorf("navbrain: no OCR element matched click text")

// Executor dispatches Actions via an Injector, using OCR (through a
// Capture+OCR pair) to resolve text-based Click targets.
type Executor struct {
	Injector Injector
	OCR      perception.OCR
	Capture  func(ctx context.Context) ([]byte, error)
	Sleep    func(d time.Duration)

	log *slog.Logger
}

// New constructs an Executor. If capture is nil, perception.CaptureScreenBuffer
// is used; if sleep is nil, time.Sleep is used (tests override both).
func New(injector Injector, ocr perception.OCR, capture func(ctx context.Context) ([]byte, error), sleep func(time.Duration)) *Executor {
	if capture == nil {
		capture = perception.CaptureScreenBuffer
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Executor{Injector: injector, OCR: ocr, Capture: capture, Sleep: sleep, log: slog.Default().With("component", "actionexec")}
}

// Dispatch executes one Action exactly once, with no retry — retry-on-failure
// is the Brain Controller's concern (spec.md §4.C8 state S3), since only the
// controller knows whether a path-level verification loop is in progress.
// Any dispatch error is logged and returned (a non-nil error is the failed
// outcome of spec.md §4.C7 "Failure policy"); callers inspect the returned
// error only to decide whether retryOnFailure applies.
func (e *Executor) Dispatch(ctx context.Context, action types.Action) error {
	var err error
	switch action.Data.Kind {
	case types.ActionClick:
		err = e.dispatchClick(ctx, action.Data.Click)
	case types.ActionType:
		err = e.dispatchType(ctx, action.Data.Type)
	case types.ActionHotkey:
		err = e.dispatchHotkey(ctx, action.Data.Hotkey)
	case types.ActionWait:
		err = e.dispatchWait(action.Data.Wait)
	case types.ActionScroll:
		err = e.dispatchScroll(ctx, action.Data.Scroll)
	default:
		err = fmt.Errorf("navbrain: unknown action kind %q", action.Data.Kind)
	}
	if err != nil {
		e.log.Warn("action dispatch failed", "kind", action.Data.Kind, "id", action.Id, "err", err)
	}
	return err
}

func (e *Executor) dispatchClick(ctx context.Context, c *types.ClickData) error {
	if c == nil {
		return fmt.Errorf("navbrain: click action missing data")
	}
	if c.IsCoordinateBased() {
		if err := e.Injector.ClickAt(ctx, *c.X, *c.Y, buttonOr(c.Button), c.DoubleClick); err != nil {
			return fmt.Errorf("navbrain: click at coordinates: %w", err)
		}
		e.Sleep(clickSettle)
		return nil
	}
	if c.IsTextBased() {
		bbox, err := e.resolveTextTarget(ctx, c.Text)
		if err != nil {
			return err
		}
		x, y := statehash.BBoxCenter(bbox)
		if err := e.Injector.ClickAt(ctx, x, y, buttonOr(c.Button), c.DoubleClick); err != nil {
			return fmt.Errorf("navbrain: click at resolved text target: %w", err)
		}
		e.Sleep(clickSettle)
		return nil
	}
	return fmt.Errorf("navbrain: click action has neither coordinates nor text")
}

func buttonOr(b types.ClickButton) types.ClickButton {
	if b == "" {
		return types.ButtonLeft
	}
	return b
}

// resolveTextTarget captures the screen, runs OCR, and selects the element
// whose text case-insensitively contains query with the highest confidence
// (spec.md §4.C7 "Click with text"). Bbox coordinates are asserted pixel-space
// via the normalization guard spec.md §4.C1 requires.
func (e *Executor) resolveTextTarget(ctx context.Context, query string) (types.BBox, error) {
	pngBytes, err := e.Capture(ctx)
	if err != nil {
		return types.BBox{}, fmt.Errorf("navbrain: capture for text click: %w", err)
	}
	analysis, ok := perception.AnalyzeBestEffort(ctx, e.OCR, pngBytes, e.log)
	if !ok || len(analysis.Elements) == 0 {
		return types.BBox{}, ErrNoMatchingElement
	}

	screen, screenErr := perception.CurrentScreenSize()
	needle := strings.ToLower(query)
	var best *types.UIElement
	var bestConf float64 = -1
	for i := range analysis.Elements {
		el := analysis.Elements[i]
		if el.BBox == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(el.Text), needle) {
			continue
		}
		conf := 0.0
		if el.Confidence != nil {
			conf = *el.Confidence
		}
		if best == nil || conf > bestConf {
			best = &el
			bestConf = conf
		}
	}
	if best == nil {
		return types.BBox{}, ErrNoMatchingElement
	}
	bbox := *best.BBox
	if bbox.Normalized() && screenErr == nil {
		bbox = statehash.ConvertBBox(bbox, screen.Width, screen.Height)
	}
	return bbox, nil
}

func (e *Executor) dispatchType(ctx context.Context, t *types.TypeData) error {
	if t == nil {
		return fmt.Errorf("navbrain: type action missing data")
	}
	if err := e.Injector.TypeText(ctx, t.Text, t.DelayMs); err != nil {
		return fmt.Errorf("navbrain: type text: %w", err)
	}
	if t.PressEnter {
		e.Sleep(typeEnterDelay)
		if err := e.Injector.PressKey(ctx, "enter", nil); err != nil {
			return fmt.Errorf("navbrain: press enter after type: %w", err)
		}
	}
	e.Sleep(typeSettle)
	return nil
}

// nonMacModifierRemap implements spec.md §4.C7's cross-platform mapping:
// "on non-macOS, command is remapped to control."
func nonMacModifierRemap(mods []types.Modifier, isMac bool) []types.Modifier {
	if isMac {
		return mods
	}
	out := make([]types.Modifier, len(mods))
	for i, m := range mods {
		if m == types.ModCommand {
			m = types.ModCtrl
		}
		out[i] = m
	}
	return out
}

// IsMacOS is overridable in tests; by default it reports
// runtime.GOOS == "darwin" (applescript_injector.go is the macOS backend
// this package ships concretely).
var IsMacOS = func() bool { return runtime.GOOS == "darwin" }

func (e *Executor) dispatchHotkey(ctx context.Context, h *types.HotkeyData) error {
	if h == nil {
		return fmt.Errorf("navbrain: hotkey action missing data")
	}
	mods := nonMacModifierRemap(h.Modifiers, IsMacOS())
	keys := h.AllKeys()
	if len(keys) == 0 {
		return fmt.Errorf("navbrain: hotkey action has no keys")
	}

	// Press all modifiers, settle ~50ms (spec.md §4.C7 "Hotkey").
	for _, m := range mods {
		if err := e.Injector.PressKey(ctx, "", []types.Modifier{m}); err != nil {
			return fmt.Errorf("navbrain: press modifier %s: %w", m, err)
		}
	}
	e.Sleep(hotkeyPreRelease)

	for i, k := range keys {
		if err := e.Injector.PressKey(ctx, k, mods); err != nil {
			return fmt.Errorf("navbrain: press key %q: %w", k, err)
		}
		if i < len(keys)-1 {
			e.Sleep(hotkeyInterKey)
		}
	}
	e.Sleep(hotkeyPostPress)
	return nil
}

func (e *Executor) dispatchWait(w *types.WaitData) error {
	if w == nil {
		return fmt.Errorf("navbrain: wait action missing data")
	}
	e.Sleep(time.Duration(w.Milliseconds) * time.Millisecond)
	return nil
}

func (e *Executor) dispatchScroll(ctx context.Context, s *types.ScrollData) error {
	if s == nil {
		return fmt.Errorf("navbrain: scroll action missing data")
	}
	if err := e.Injector.Scroll(ctx, s.Amount, s.Direction); err != nil {
		return fmt.Errorf("navbrain: scroll: %w", err)
	}
	return nil
}
