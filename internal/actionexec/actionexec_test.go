package actionexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/types"
)

type fakeInjector struct {
	clicks   []clickCall
	typed    []string
	pressed  []string
	scrolled []scrollCall
}

type clickCall struct {
	x, y   float64
	button types.ClickButton
	double bool
}

type scrollCall struct {
	amount    int
	direction types.ScrollDirection
}

func (f *fakeInjector) ClickAt(ctx context.Context, x, y float64, button types.ClickButton, doubleClick bool) error {
	f.clicks = append(f.clicks, clickCall{x, y, button, doubleClick})
	return nil
}

func (f *fakeInjector) TypeText(ctx context.Context, text string, delayMs int) error {
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeInjector) PressKey(ctx context.Context, key string, modifiers []types.Modifier) error {
	f.pressed = append(f.pressed, key)
	return nil
}

func (f *fakeInjector) Scroll(ctx context.Context, amount int, direction types.ScrollDirection) error {
	f.scrolled = append(f.scrolled, scrollCall{amount, direction})
	return nil
}

type fakeOCR struct {
	analysis perception.OCRAnalysis
	err      error
}

func (f fakeOCR) Analyze(ctx context.Context, pngBytes []byte) (perception.OCRAnalysis, error) {
	return f.analysis, f.err
}

func noSleep(time.Duration) {}

func fixedCapture(ctx context.Context) ([]byte, error) { return []byte("png"), nil }

func TestDispatch_ClickCoordinateBased(t *testing.T) {
	injector := &fakeInjector{}
	exec := New(injector, fakeOCR{err: perception.ErrUnavailable}, fixedCapture, noSleep)

	x, y := 10.0, 20.0
	action := types.Action{Data: types.ActionData{Kind: types.ActionClick, Click: &types.ClickData{X: &x, Y: &y, Button: types.ButtonLeft}}}
	if err := exec.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(injector.clicks) != 1 || injector.clicks[0].x != x || injector.clicks[0].y != y {
		t.Fatalf("expected one click at (%v,%v), got %+v", x, y, injector.clicks)
	}
}

func TestDispatch_ClickTextBased_ResolvesHighestConfidence(t *testing.T) {
	injector := &fakeInjector{}
	conf1, conf2 := 0.4, 0.9
	ocr := fakeOCR{analysis: perception.OCRAnalysis{Elements: []types.UIElement{
		{Text: "Settings button", BBox: &types.BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: &conf1},
		{Text: "Advanced Settings", BBox: &types.BBox{X: 100, Y: 100, W: 20, H: 20}, Confidence: &conf2},
	}}}
	exec := New(injector, ocr, fixedCapture, noSleep)

	action := types.Action{Data: types.ActionData{Kind: types.ActionClick, Click: &types.ClickData{Text: "settings", Button: types.ButtonLeft}}}
	if err := exec.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(injector.clicks) != 1 {
		t.Fatalf("expected one click, got %d", len(injector.clicks))
	}
	// Center of the second (higher-confidence) element's bbox: (100+10, 100+10).
	if injector.clicks[0].x != 110 || injector.clicks[0].y != 110 {
		t.Fatalf("expected click at highest-confidence element center, got (%v,%v)", injector.clicks[0].x, injector.clicks[0].y)
	}
}

func TestDispatch_ClickTextBased_NoMatchFails(t *testing.T) {
	injector := &fakeInjector{}
	exec := New(injector, fakeOCR{err: perception.ErrUnavailable}, fixedCapture, noSleep)

	action := types.Action{Data: types.ActionData{Kind: types.ActionClick, Click: &types.ClickData{Text: "nonexistent"}}}
	err := exec.Dispatch(context.Background(), action)
	if err == nil {
		t.Fatal("expected error when no OCR element matches")
	}
	if !errors.Is(err, ErrNoMatchingElement) {
		t.Fatalf("expected ErrNoMatchingElement, got %v", err)
	}
}

func TestDispatch_TypeWithPressEnter(t *testing.T) {
	injector := &fakeInjector{}
	exec := New(injector, fakeOCR{err: perception.ErrUnavailable}, fixedCapture, noSleep)

	action := types.Action{Data: types.ActionData{Kind: types.ActionType, Type: &types.TypeData{Text: "Calculator", PressEnter: true}}}
	if err := exec.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(injector.typed) != 1 || injector.typed[0] != "Calculator" {
		t.Fatalf("expected typed text 'Calculator', got %+v", injector.typed)
	}
	if len(injector.pressed) != 1 || injector.pressed[0] != "enter" {
		t.Fatalf("expected a pressed 'enter', got %+v", injector.pressed)
	}
}

func TestDispatch_Hotkey_PressesModifiersThenKeys(t *testing.T) {
	injector := &fakeInjector{}
	exec := New(injector, fakeOCR{err: perception.ErrUnavailable}, fixedCapture, noSleep)

	action := types.Action{Data: types.ActionData{Kind: types.ActionHotkey, Hotkey: &types.HotkeyData{
		Key:       "space",
		Modifiers: []types.Modifier{types.ModCommand},
	}}}
	if err := exec.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(injector.pressed) != 2 {
		t.Fatalf("expected 2 PressKey calls (modifier + key), got %d: %+v", len(injector.pressed), injector.pressed)
	}
	if injector.pressed[1] != "space" {
		t.Fatalf("expected final press to be 'space', got %q", injector.pressed[1])
	}
}

func TestDispatch_Wait_SleepsRequestedDuration(t *testing.T) {
	var slept time.Duration
	injector := &fakeInjector{}
	exec := New(injector, fakeOCR{err: perception.ErrUnavailable}, fixedCapture, func(d time.Duration) { slept += d })

	action := types.Action{Data: types.ActionData{Kind: types.ActionWait, Wait: &types.WaitData{Milliseconds: 250}}}
	if err := exec.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if slept != 250*time.Millisecond {
		t.Fatalf("expected 250ms slept, got %v", slept)
	}
}

func TestDispatch_Scroll(t *testing.T) {
	injector := &fakeInjector{}
	exec := New(injector, fakeOCR{err: perception.ErrUnavailable}, fixedCapture, noSleep)

	action := types.Action{Data: types.ActionData{Kind: types.ActionScroll, Scroll: &types.ScrollData{Amount: 5, Direction: types.ScrollDown}}}
	if err := exec.Dispatch(context.Background(), action); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(injector.scrolled) != 1 || injector.scrolled[0].amount != 5 || injector.scrolled[0].direction != types.ScrollDown {
		t.Fatalf("expected one scroll(5,down), got %+v", injector.scrolled)
	}
}

func TestNonMacModifierRemap_CommandBecomesControl(t *testing.T) {
	out := nonMacModifierRemap([]types.Modifier{types.ModCommand, types.ModShift}, false)
	if out[0] != types.ModCtrl || out[1] != types.ModShift {
		t.Fatalf("expected [ctrl, shift] on non-mac, got %+v", out)
	}
}

func TestNonMacModifierRemap_MacLeavesCommandAlone(t *testing.T) {
	out := nonMacModifierRemap([]types.Modifier{types.ModCommand}, true)
	if out[0] != types.ModCommand {
		t.Fatalf("expected command preserved on mac, got %+v", out)
	}
}
