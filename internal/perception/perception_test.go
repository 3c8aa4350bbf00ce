package perception

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/haricheung/navbrain/internal/types"
)

func TestNullOCR_ReturnsUnavailable(t *testing.T) {
	_, err := NullOCR{}.Analyze(context.Background(), []byte("fake png"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAnalyzeBestEffort_TreatsUnavailableAsEmpty(t *testing.T) {
	analysis, ok := AnalyzeBestEffort(context.Background(), NullOCR{}, nil, slog.Default())
	if ok {
		t.Fatalf("expected ok=false for unavailable OCR")
	}
	if len(analysis.Elements) != 0 {
		t.Fatalf("expected empty elements, got %v", analysis.Elements)
	}
}

func TestNormalizeElements_ConvertsNormalizedBBoxOnly(t *testing.T) {
	screen := ScreenSize{Width: 1000, Height: 500}
	pixelBox := types.BBox{X: 200, Y: 300, W: 50, H: 40}
	normBox := types.BBox{X: 0.5, Y: 0.4, W: 0.1, H: 0.1}

	elements := []types.UIElement{
		{Kind: types.KindText, Text: "already pixel", BBox: &pixelBox},
		{Kind: types.KindText, Text: "normalized", BBox: &normBox},
		{Kind: types.KindText, Text: "no bbox"},
	}

	out := NormalizeElements(elements, screen)

	if *out[0].BBox != pixelBox {
		t.Fatalf("expected untouched pixel bbox, got %+v", out[0].BBox)
	}
	if out[1].BBox.X != 500 || out[1].BBox.Y != 200 {
		t.Fatalf("expected converted pixel coordinates, got %+v", out[1].BBox)
	}
	if out[2].BBox != nil {
		t.Fatalf("expected nil bbox to remain nil")
	}
}

func TestCurrentScreenSize_CachesAcrossCalls(t *testing.T) {
	first, err := CurrentScreenSize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := CurrentScreenSize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached screen size to be stable, got %+v vs %+v", first, second)
	}
}

func TestCaptureError_WrapsUnderlying(t *testing.T) {
	underlying := errors.New("exit status 1")
	err := &CaptureError{Stderr: "permission denied", Err: underlying}
	if !errors.Is(err, underlying) {
		t.Fatalf("expected errors.Is to unwrap to underlying error")
	}
}
