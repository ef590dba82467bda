package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrPlanNotFound    = errors.New("plan not found")
	ErrStageNotFound   = errors.New("stage not found")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrUnknownCommand  = errors.New("unknown command kind")
	ErrNoHandler       = errors.New("no handler registered for command kind")
	ErrRuleEvalFailed  = errors.New("rule evaluation failed")
	ErrSpecUnavailable = errors.New("stage set specification unavailable")
)

// PlanErrorKind discriminates structural compilation failures.
type PlanErrorKind string

const (
	// PlanErrorLimitExceeded covers stage-count, edge-count, depth, fan-in,
	// and fan-out violations.
	PlanErrorLimitExceeded PlanErrorKind = "limit_exceeded"
	// PlanErrorCycle marks dependency cycles.
	PlanErrorCycle PlanErrorKind = "cycle_detected"
	// PlanErrorDuplicateSlot marks two stages providing the same slot.
	PlanErrorDuplicateSlot PlanErrorKind = "duplicate_slot_producer"
	// PlanErrorDuplicateStage marks repeated stage IDs.
	PlanErrorDuplicateStage PlanErrorKind = "duplicate_stage_id"
	// PlanErrorUnknownDependency marks DependsOn slots nothing can satisfy.
	PlanErrorUnknownDependency PlanErrorKind = "unknown_dependency"
	// PlanErrorInvalidPlugin marks plugins with empty IDs or nil run funcs.
	PlanErrorInvalidPlugin PlanErrorKind = "invalid_plugin"
)

// PlanError is the structured, non-thrown failure value returned by the
// compiler. Callers branch on Kind; Error exists so the value can also travel
// through error-shaped plumbing (logs, wrapping) without losing information.
type PlanError struct {
	Kind    PlanErrorKind
	Message string
	StageID StageID
	Slot    SlotKey
}

func (e *PlanError) Error() string {
	switch {
	case e.StageID != "" && e.Slot != "":
		return fmt.Sprintf("%s: %s (stage=%s slot=%s)", e.Kind, e.Message, e.StageID, e.Slot)
	case e.StageID != "":
		return fmt.Sprintf("%s: %s (stage=%s)", e.Kind, e.Message, e.StageID)
	case e.Slot != "":
		return fmt.Sprintf("%s: %s (slot=%s)", e.Kind, e.Message, e.Slot)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}
