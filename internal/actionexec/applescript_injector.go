package actionexec

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/haricheung/navbrain/internal/types"
)

// AppleScriptError wraps an osascript failure with its stderr, adapted
// near-verbatim from the teacher's internal/tools/applescript.go.
type AppleScriptError struct {
	Stderr string
	Err    error
}

func (e *AppleScriptError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("navbrain: osascript failed: %s", e.Stderr)
	}
	return fmt.Sprintf("navbrain: osascript failed: %v", e.Err)
}

func (e *AppleScriptError) Unwrap() error { return e.Err }

// runAppleScript shells the script into osascript via stdin, exactly the
// teacher's RunAppleScript idiom — no shell-escaping concerns since the
// script is piped, not interpolated into a command line.
func runAppleScript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-")
	cmd.Stdin = strings.NewReader(script)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", &AppleScriptError{Stderr: string(ee.Stderr), Err: err}
		}
		return "", &AppleScriptError{Err: err}
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// AppleScriptInjector drives macOS's Accessibility API indirectly through
// AppleScript's "System Events" scripting additions (spec.md §4.C7's default
// input-injection backend, SPEC_FULL.md "C7 concrete backend"). It implements
// the Injector interface; callers may substitute a different Injector without
// changing the Executor.
type AppleScriptInjector struct{}

// NewInjector constructs the default AppleScript-driven Injector.
func NewInjector() AppleScriptInjector { return AppleScriptInjector{} }

func keyCodeFor(key string) (string, bool) {
	// A small fixed map of the key names the VLM-synthesized actions and
	// launch_app's convenience verbs actually use; arbitrary single
	// characters fall through to "keystroke" instead of "key code".
	codes := map[string]string{
		"enter":  "36",
		"return": "36",
		"tab":    "48",
		"escape": "53",
		"space":  "49",
		"up":     "126",
		"down":   "125",
		"left":   "123",
		"right":  "124",
	}
	code, ok := codes[strings.ToLower(key)]
	return code, ok
}

func modifierClause(modifiers []types.Modifier) string {
	if len(modifiers) == 0 {
		return ""
	}
	names := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		switch m {
		case types.ModCommand:
			names = append(names, "command down")
		case types.ModCtrl:
			names = append(names, "control down")
		case types.ModAlt:
			names = append(names, "option down")
		case types.ModShift:
			names = append(names, "shift down")
		}
	}
	if len(names) == 0 {
		return ""
	}
	return " using {" + strings.Join(names, ", ") + "}"
}

// PressKey implements spec.md §4.C7's Hotkey semantics: a named key plus
// zero or more held modifiers, pressed-and-released as one "System Events"
// keystroke/key code call. A Modifier-only call (key == "") presses nothing
// by itself — the Executor calls PressKey once per modifier with no key to
// hold each one down conceptually, but System Events has no standalone
// "key down" primitive, so those calls are no-ops here; the modifiers are
// instead applied to the subsequent per-key keystroke calls via `using`.
func (AppleScriptInjector) PressKey(ctx context.Context, key string, modifiers []types.Modifier) error {
	if key == "" {
		return nil
	}
	clause := modifierClause(modifiers)
	var script string
	if code, ok := keyCodeFor(key); ok {
		script = fmt.Sprintf(`tell application "System Events" to key code %s%s`, code, clause)
	} else {
		escaped := strings.ReplaceAll(key, `"`, `\"`)
		script = fmt.Sprintf(`tell application "System Events" to keystroke "%s"%s`, escaped, clause)
	}
	_, err := runAppleScript(ctx, script)
	return err
}

// TypeText implements spec.md §4.C7's Type semantics: emit characters via
// "System Events" keystroke. delayMs is honored as osascript's own `delay`
// is per-script, not per-character, so a nonzero delay here is applied once
// before the keystroke to approximate the inter-key pacing a native
// implementation would do per character.
func (AppleScriptInjector) TypeText(ctx context.Context, text string, delayMs int) error {
	escaped := strings.ReplaceAll(text, `"`, `\"`)
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
	if delayMs > 0 {
		script = fmt.Sprintf("delay %s\n%s", strconv.FormatFloat(float64(delayMs)/1000, 'f', -1, 64), script)
	}
	_, err := runAppleScript(ctx, script)
	return err
}

// ClickAt implements spec.md §4.C7's coordinate-based Click: move and click
// at (x,y) with the given button, single or double.
func (AppleScriptInjector) ClickAt(ctx context.Context, x, y float64, button types.ClickButton, doubleClick bool) error {
	clickVerb := "click"
	switch button {
	case types.ButtonRight:
		clickVerb = "right click"
	case types.ButtonMiddle:
		clickVerb = "middle click" // System Events has no native middle-click verb; left as a documented gap
	}
	point := fmt.Sprintf("{%s, %s}", strconv.FormatFloat(x, 'f', 0, 64), strconv.FormatFloat(y, 'f', 0, 64))
	script := fmt.Sprintf(`tell application "System Events" to %s at %s`, clickVerb, point)
	if doubleClick {
		script += fmt.Sprintf("\ntell application \"System Events\" to %s at %s", clickVerb, point)
	}
	_, err := runAppleScript(ctx, script)
	return err
}

// Scroll implements spec.md §4.C7's Scroll semantics via System Events'
// scroll wheel event primitive.
func (AppleScriptInjector) Scroll(ctx context.Context, amount int, direction types.ScrollDirection) error {
	delta := amount
	if direction == types.ScrollDown {
		delta = -amount
	}
	script := fmt.Sprintf(`tell application "System Events" to scroll %d`, delta)
	_, err := runAppleScript(ctx, script)
	return err
}
