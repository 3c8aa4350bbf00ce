package statehash

import (
	"testing"

	"github.com/haricheung/navbrain/internal/types"
)

func ptr(f float64) *float64 { return &f }

func elem(kind types.ElementKind, text string, x, y, w, h float64) types.UIElement {
	return types.UIElement{
		Kind: kind,
		Text: text,
		BBox: &types.BBox{X: x, Y: y, W: w, H: h},
	}
}

// Expectations: hashing the same element set in any order yields the same
// hash (property P1).
func TestHashElements_PermutationInvariant(t *testing.T) {
	a := []types.UIElement{
		elem(types.KindButton, "OK", 10, 20, 30, 40),
		elem(types.KindText, "Hello", 100, 200, 50, 20),
	}
	b := []types.UIElement{a[1], a[0]}

	if HashElements(a) != HashElements(b) {
		t.Fatalf("expected permutation-invariant hash, got %s vs %s", HashElements(a), HashElements(b))
	}
}

// Expectations: perturbing each bbox component within its 10px quantization
// bucket does not change the hash (property P2).
func TestHashElements_QuantizationTolerant(t *testing.T) {
	a := []types.UIElement{elem(types.KindButton, "OK", 10, 20, 30, 40)}
	b := []types.UIElement{elem(types.KindButton, "OK", 14, 23, 31, 44)}

	if HashElements(a) != HashElements(b) {
		t.Fatalf("expected quantization-tolerant hash, got %s vs %s", HashElements(a), HashElements(b))
	}
}

func TestHashElements_CrossesQuantizationBoundary(t *testing.T) {
	a := []types.UIElement{elem(types.KindButton, "OK", 9, 9, 9, 9)}
	b := []types.UIElement{elem(types.KindButton, "OK", 10, 10, 10, 10)}

	if HashElements(a) == HashElements(b) {
		t.Fatalf("expected different buckets across a 10px boundary")
	}
}

func TestHashElements_Length(t *testing.T) {
	h := HashElements([]types.UIElement{elem(types.KindText, "x", 0, 0, 1, 1)})
	if len(h) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%s)", len(h), h)
	}
}

func TestHashElements_TextCaseAndWhitespaceNormalized(t *testing.T) {
	a := []types.UIElement{elem(types.KindText, "  Hello  ", 0, 0, 0, 0)}
	b := []types.UIElement{elem(types.KindText, "hello", 0, 0, 0, 0)}
	if HashElements(a) != HashElements(b) {
		t.Fatalf("expected case/whitespace-normalized hash equality")
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []types.UIElement
		want float64
	}{
		{"identical", []types.UIElement{elem(types.KindText, "Hello", 0, 0, 0, 0)}, []types.UIElement{elem(types.KindText, "hello", 0, 0, 0, 0)}, 1},
		{"disjoint", []types.UIElement{elem(types.KindText, "Hello", 0, 0, 0, 0)}, []types.UIElement{elem(types.KindText, "World", 0, 0, 0, 0)}, 0},
		{"both empty", nil, nil, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Similarity(c.a, c.b); got != c.want {
				t.Fatalf("Similarity() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestConvertBBox_NormalizedToPixels(t *testing.T) {
	b := types.BBox{X: 0.5, Y: 0.25, W: 0.1, H: 0.2}
	if !b.Normalized() {
		t.Fatalf("expected bbox to be detected as normalized")
	}
	px := ConvertBBox(b, 1000, 800)
	if px.X != 500 || px.Y != 200 || px.W != 100 || px.H != 160 {
		t.Fatalf("unexpected pixel conversion: %+v", px)
	}
}

// Expectations: clicking the center of a normalized all-in-[0,1] bbox on a
// WxH screen lands within (W,H) bounds (property P7).
func TestBBoxCenter_WithinScreenBounds(t *testing.T) {
	b := types.BBox{X: 0.9, Y: 0.9, W: 0.2, H: 0.2}
	px := ConvertBBox(b, 1920, 1080)
	x, y := BBoxCenter(px)
	if x < 0 || x > 1920 || y < 0 || y > 1080 {
		t.Fatalf("center (%v,%v) out of screen bounds", x, y)
	}
}
