// Package perception captures the primary display and (optionally) recognizes
// text on it (spec.md §4.C1). Screen capture shells into the native
// "screencapture" utility the same way the teacher's internal/tools/applescript.go
// shells into "osascript": stdin/tmpfile plumbing, typed error wrapping,
// scoped cleanup on every exit path (spec.md §9 "Perception resource scope").
package perception

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/haricheung/navbrain/internal/statehash"
	"github.com/haricheung/navbrain/internal/types"
)

// CaptureError wraps a failure from the native screen-capture utility,
// mirroring the teacher's AppleScriptError typed-error idiom.
type CaptureError struct {
	Stderr string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("navbrain: screencapture failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("navbrain: screencapture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ErrUnavailable is returned by an OCR backend that is absent on this
// platform (spec.md §4.C1 "the OCR backend may be absent").
var ErrUnavailable = errors.New("navbrain: OCR backend unavailable")

// CaptureScreenBuffer shells into "screencapture -x <tmpfile>.png" (silent
// capture of the primary display) and returns the PNG bytes. The temp file
// is removed on every exit path via defer, per spec.md §9's scoped-cleanup
// design note. Capture failure is fatal for the calling identification
// attempt (spec.md §4.C1 "Failure policy").
func CaptureScreenBuffer(ctx context.Context) ([]byte, error) {
	f, err := os.CreateTemp("", "navbrain-capture-*.png")
	if err != nil {
		return nil, fmt.Errorf("navbrain: create capture temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	cmd := exec.CommandContext(ctx, "screencapture", "-x", path)
	var stderr []byte
	out, err := cmd.CombinedOutput()
	stderr = out
	if err != nil {
		return nil, &CaptureError{Stderr: string(stderr), Err: err}
	}

	png, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("navbrain: read capture output: %w", err)
	}
	return png, nil
}

// OCRAnalysis is the normalized result of running OCR over a screenshot
// (spec.md §4.C1's "{fullText, elements, platform}").
type OCRAnalysis struct {
	FullText string
	Elements []types.UIElement
	Platform string
}

// OCR recognizes text in a screenshot. Concrete backends are explicitly
// out of scope (spec.md §1); only the interface plus the always-unavailable
// NullOCR implementation ship here.
type OCR interface {
	Analyze(ctx context.Context, pngBytes []byte) (OCRAnalysis, error)
}

// NullOCR always reports ErrUnavailable, exercising the PerceptionUnavailable
// path (spec.md §7.1) without depending on any platform-specific OCR engine.
type NullOCR struct{}

func (NullOCR) Analyze(context.Context, []byte) (OCRAnalysis, error) {
	return OCRAnalysis{}, ErrUnavailable
}

// ScreenSize is cached process-wide by CurrentScreenSize and never
// invalidated (spec.md §9 open question (a); see DESIGN.md open question (a)).
type ScreenSize struct {
	Width, Height float64
}

var (
	screenSizeOnce  sync.Once
	cachedScreenSize ScreenSize
	screenSizeErr   error
)

// screenSizeProbe is overridable in tests. By default it returns a fixed
// 1920x1080; it does not query the display, so normalized-to-pixel
// conversion assumes that size on every screen.
var screenSizeProbe = func() (ScreenSize, error) {
	return ScreenSize{Width: 1920, Height: 1080}, nil
}

// CurrentScreenSize returns the cached screen size, probing exactly once.
func CurrentScreenSize() (ScreenSize, error) {
	screenSizeOnce.Do(func() {
		cachedScreenSize, screenSizeErr = screenSizeProbe()
	})
	return cachedScreenSize, screenSizeErr
}

// NormalizeElements converts any UIElement whose bbox is detected as
// normalized ([0,1] on all four components, spec.md §4.C1's detection rule)
// into pixel coordinates using the cached screen size. Elements already in
// pixel space, or with no bbox, pass through unchanged.
func NormalizeElements(elements []types.UIElement, screen ScreenSize) []types.UIElement {
	out := make([]types.UIElement, len(elements))
	for i, e := range elements {
		if e.BBox != nil && e.BBox.Normalized() {
			converted := statehash.ConvertBBox(*e.BBox, screen.Width, screen.Height)
			e.BBox = &converted
		}
		out[i] = e
	}
	return out
}

func logUnavailable(log *slog.Logger, err error) {
	log.Debug("OCR unavailable, continuing with empty elements", "err", err)
}

// AnalyzeBestEffort runs ocr.Analyze and tolerates ErrUnavailable (and any
// other OCR failure) by logging and returning an empty analysis, per
// spec.md §4.C1: "Callers MUST tolerate absence by continuing with
// elements = [] and no ocrResult."
func AnalyzeBestEffort(ctx context.Context, ocr OCR, pngBytes []byte, log *slog.Logger) (OCRAnalysis, bool) {
	analysis, err := ocr.Analyze(ctx, pngBytes)
	if err != nil {
		logUnavailable(log, err)
		return OCRAnalysis{Elements: []types.UIElement{}}, false
	}
	return analysis, true
}
