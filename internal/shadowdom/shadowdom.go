// Package shadowdom holds the single latest runtime screen snapshot bound
// to a Node identity (spec.md §4.C5). Never persisted.
package shadowdom

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haricheung/navbrain/internal/perception"
	"github.com/haricheung/navbrain/internal/statehash"
	"github.com/haricheung/navbrain/internal/types"
	"github.com/haricheung/navbrain/internal/vlm"
)

// Builder constructs a ShadowDOM via the fixed pipeline spec.md §4.C5
// requires: capture → OCR (best-effort) → identifyUIElements → hashElements.
type Builder struct {
	OCR     perception.OCR
	VLM     *vlm.Adapter
	Capture func(ctx context.Context) ([]byte, error)

	log *slog.Logger
}

// NewBuilder constructs a Builder. If capture is nil, perception.CaptureScreenBuffer is used.
func NewBuilder(ocr perception.OCR, vlmAdapter *vlm.Adapter, capture func(ctx context.Context) ([]byte, error)) *Builder {
	if capture == nil {
		capture = perception.CaptureScreenBuffer
	}
	return &Builder{OCR: ocr, VLM: vlmAdapter, Capture: capture, log: slog.Default().With("component", "shadowdom")}
}

// Construct builds a fresh ShadowDOM for nodeId. instanceHash uses the same
// quantized statehash.HashElements algorithm as a Node's stateHash, computed
// over this fresh capture's elements, so it can differ from the stateHash of
// nodeId when the screen has changed since identification.
func (b *Builder) Construct(ctx context.Context, nodeId types.NodeId) (*types.ShadowDOM, error) {
	pngBytes, err := b.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("navbrain: shadowdom capture: %w", err)
	}

	analysis, ocrOK := perception.AnalyzeBestEffort(ctx, b.OCR, pngBytes, b.log)
	screenshotB64 := base64.StdEncoding.EncodeToString(pngBytes)

	identify := b.VLM.IdentifyUIElements(ctx, screenshotB64, analysis.Elements)

	screen, screenErr := perception.CurrentScreenSize()
	elements := identify.Elements
	if screenErr == nil {
		elements = perception.NormalizeElements(elements, screen)
	}

	dom := &types.ShadowDOM{
		NodeId:         nodeId,
		CapturedAt:     time.Now().UTC(),
		Screenshot:     screenshotB64,
		UIElements:     elements,
		VLMDescription: identify.Description,
		InstanceHash:   statehash.HashElements(elements),
	}
	if ocrOK {
		dom.OCRFullText = analysis.FullText
	}
	return dom, nil
}

// Holder keeps the single current ShadowDOM (spec.md: "At most one
// ShadowDOM exists at a time inside the Brain"). Update triggers are (a)
// after identifying the current Node, (b) after each executed Action —
// both exclusively driven by internal/brain; external callers only read.
type Holder struct {
	mu      sync.RWMutex
	current *types.ShadowDOM
}

// Set replaces the current ShadowDOM. Only internal/brain should call this.
func (h *Holder) Set(dom *types.ShadowDOM) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = dom
}

// Current returns the current ShadowDOM, or nil if none has been constructed
// yet. Callers requiring one MUST treat nil as a recoverable failure
// (spec.md §4.C5 "Reads").
func (h *Holder) Current() *types.ShadowDOM {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}
