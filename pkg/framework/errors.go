package framework

import (
	"errors"
	"fmt"

	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/session"
)

// Error taxonomy for the pipeline core. Every failure surfaced to the worker
// wraps exactly one of these sentinels.
var (
	// ErrInvalidPlan is returned when an enabled stage's dependency is not
	// part of the enabled set.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrDependencyMissing is returned when a stage runs before its
	// declared prerequisite produced an analysis record.
	ErrDependencyMissing = errors.New("dependency missing")

	// ErrAnalysisFailed wraps a failure from a stage's analyse call.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrProcessFailed wraps a failure from a stage's process call.
	ErrProcessFailed = errors.New("process failed")

	// ErrArtifactWrite wraps a refused artifact write.
	ErrArtifactWrite = errors.New("artifact write failed")

	// ErrCancelled is returned when a cooperative cancel is observed.
	ErrCancelled = errors.New("cancelled")
)

// StageError ties a taxonomy sentinel to the stage it occurred in and the
// underlying cause.
type StageError struct {
	StageID string
	Kind    error
	Cause   error
}

// Error implements error.
func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("stage %s: %v", e.StageID, e.Kind)
	}

	return fmt.Sprintf("stage %s: %v: %v", e.StageID, e.Kind, e.Cause)
}

// Unwrap exposes both the taxonomy sentinel and the cause to errors.Is.
func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// FailedStage extracts the stage id from an error chain, or "" when the
// error is not stage-scoped.
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.StageID
	}

	return ""
}

// ErrorKind names the taxonomy entry for a pipeline error. The name is
// carried verbatim in terminal failure status blobs.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, contract.ErrUnknownStage):
		return "UnknownStage"
	case errors.Is(err, ErrInvalidPlan):
		return "InvalidPlan"
	case errors.Is(err, session.ErrInputMissing):
		return "InputMissing"
	case errors.Is(err, ErrDependencyMissing):
		return "DependencyMissing"
	case errors.Is(err, ErrAnalysisFailed):
		return "AnalysisFailed"
	case errors.Is(err, ErrProcessFailed):
		return "ProcessFailed"
	case errors.Is(err, ErrArtifactWrite):
		return "ArtifactWriteFailed"
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	default:
		return "Internal"
	}
}
