package graph

import (
	"time"

	"github.com/haricheung/navbrain/internal/types"
)

// ApplyExecutionOutcome recomputes a Path's metadata for one execution
// attempt, per invariant I3: usageCount increments exactly once, and
// successRate/averageDuration_ms are each updated via the running-mean
// formula `new = (old*(usageCount-1) + outcome) / usageCount`. This fixes
// the double-update ambiguity spec.md §9 open question (b) calls out in
// the source material, rather than guessing its intent.
//
// The running-mean update style is carried from the teacher's GGS/memory
// decayed-statistic bookkeeping (see DESIGN.md), simplified to the spec's
// plain arithmetic mean since the Brain has no loss-gradient machinery.
func ApplyExecutionOutcome(meta types.PathMetadata, success bool, durationMs float64, now time.Time) types.PathMetadata {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	meta.UsageCount++
	n := float64(meta.UsageCount)
	if meta.UsageCount == 1 {
		meta.SuccessRate = outcome
		meta.AverageDurationMs = durationMs
	} else {
		meta.SuccessRate = (meta.SuccessRate*(n-1) + outcome) / n
		meta.AverageDurationMs = (meta.AverageDurationMs*(n-1) + durationMs) / n
	}
	meta.LastUsed = now
	return meta
}
