// Package statehash reduces a set of UI elements to a stable,
// position-quantized content hash (spec component C2).
package statehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/haricheung/navbrain/internal/types"
)

// QuantizeStep is the pixel granularity bbox components are floored to
// before hashing. Absorbs subpixel and anti-alias jitter (property P2).
const QuantizeStep = 10.0

type normalizedElement struct {
	kind     types.ElementKind
	text     string
	position string // "x,y,w,h" quantized, or "none"
}

func normalize(e types.UIElement) normalizedElement {
	text := strings.ToLower(strings.TrimSpace(e.Text))
	pos := "none"
	if e.BBox != nil {
		pos = quantizePos(*e.BBox)
	}
	return normalizedElement{kind: e.Kind, text: text, position: pos}
}

func quantizePos(b types.BBox) string {
	q := func(v float64) int64 {
		return int64(math.Floor(v/QuantizeStep) * QuantizeStep)
	}
	return fmt.Sprintf("%d,%d,%d,%d", q(b.X), q(b.Y), q(b.W), q(b.H))
}

func sortElements(elems []normalizedElement) {
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i], elems[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.text != b.text {
			return a.text < b.text
		}
		// "none" sorts before any present position.
		if a.position == "none" && b.position != "none" {
			return true
		}
		if a.position != "none" && b.position == "none" {
			return false
		}
		return a.position < b.position
	})
}

func join(elems []normalizedElement) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = string(e.kind) + ":" + e.text + ":" + e.position
	}
	return strings.Join(parts, "|")
}

// HashElements implements C2's algorithm: normalize, sort, join, SHA-256,
// truncate to 16 hex characters. Deterministic across permutations of E
// (P1), per I4, and unchanged by bbox perturbations that keep every
// component inside its 10px bucket (P2); a perturbation that crosses a
// bucket boundary changes the hash.
func HashElements(elements []types.UIElement) string {
	normalized := make([]normalizedElement, len(elements))
	for i, e := range elements {
		normalized[i] = normalize(e)
	}
	sortElements(normalized)
	joined := join(normalized)
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}

// Similarity computes the Jaccard similarity of the lowercased non-empty
// text sets of two element lists. Supports future fuzzy-match; not used by
// basic identification (spec.md §4.C2 "Similarity").
func Similarity(a, b []types.UIElement) float64 {
	setA := textSet(a)
	setB := textSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	union := map[string]struct{}{}
	for t := range setA {
		union[t] = struct{}{}
	}
	for t := range setB {
		union[t] = struct{}{}
		if _, ok := setA[t]; ok {
			intersection++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func textSet(elements []types.UIElement) map[string]struct{} {
	set := map[string]struct{}{}
	for _, e := range elements {
		t := strings.ToLower(strings.TrimSpace(e.Text))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// ConvertBBox converts a normalized (all components in [0,1]) bbox to
// screen pixel coordinates. Callers should guard with b.Normalized() first
// (spec.md §4.C1's detection rule); ConvertBBox itself always treats its
// input as normalized.
func ConvertBBox(b types.BBox, screenW, screenH float64) types.BBox {
	return types.BBox{
		X: b.X * screenW,
		Y: b.Y * screenH,
		W: b.W * screenW,
		H: b.H * screenH,
	}
}

// BBoxCenter returns the pixel-space center point of a bbox.
func BBoxCenter(b types.BBox) (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// FormatCenter is a debug helper formatting a bbox center as "x,y" rounded
// to the nearest integer.
func FormatCenter(b types.BBox) string {
	x, y := BBoxCenter(b)
	return strconv.Itoa(int(math.Round(x))) + "," + strconv.Itoa(int(math.Round(y)))
}
