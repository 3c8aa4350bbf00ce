// Package brain implements the Brain Controller (spec.md §4.C8): the
// top-level orchestration of identify-current-node → find-or-learn path →
// execute-with-verification → update graph. Grounded on the teacher's
// internal/roles/metaval/metaval.go (accept/replan verdict merge, here the
// DONE_OK/relearn decision) and internal/roles/agentval/agentval.go
// (per-criterion verification loop), combined with spec.md §4.C8's explicit
// state machine.
package brain

import "errors"

// The error taxonomy of spec.md §7, as sentinel errors. NavigateTo and
// ExecutePath return (ok bool, message string) with any failure folded into
// message as text; IdentifyCurrentNode, LearnPath, LaunchApp and
// CloseCurrentApp return errors that wrap ErrIdentificationFailed,
// ErrLearningRejected or ErrActionFailed and can be checked with errors.Is.
// ErrVerificationFailed, ErrTimeout and ErrFatal are declared for the
// taxonomy but no code path in this package returns them.
var (
	// ErrIdentificationFailed: capture or VLM returned nothing parseable.
	ErrIdentificationFailed = errors.New("navbrain: identification failed")
	// ErrLearningRejected: actions=[] or confidence<0.3 (not persisted).
	ErrLearningRejected = errors.New("navbrain: learning rejected")
	// ErrActionFailed: a single action threw, and any permitted retry also failed.
	ErrActionFailed = errors.New("navbrain: action failed")
	// ErrVerificationFailed: post-action OCR/VLM check failed.
	ErrVerificationFailed = errors.New("navbrain: verification failed")
	// ErrTimeout: the path's validation.timeout_ms budget expired mid-execution.
	ErrTimeout = errors.New("navbrain: execution timed out")
	// ErrFatal: the OS input subsystem is unusable (spec.md §7.8). Input
	// injection failures surface as ErrActionFailed; nothing returns ErrFatal.
	ErrFatal = errors.New("navbrain: fatal input subsystem error")
)
