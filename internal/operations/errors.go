package operations

import (
	"fmt"
)

// ErrorType classifies pipeline errors.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeStructuralPath ErrorType = "structural_path"
	ErrorTypeClassification ErrorType = "classification_inconsistency"
	ErrorTypeIO             ErrorType = "io"
	ErrorTypeSizeBudget     ErrorType = "size_budget"
	ErrorTypeExecution      ErrorType = "execution"
	ErrorTypeCancellation   ErrorType = "cancellation"
	ErrorTypeLedger         ErrorType = "ledger"
)

// StepError is a pipeline-step error with enough context to map it back to
// one physical raw file.
type StepError struct {
	Type    ErrorType
	Step    string
	Message string
	Cause   error
	Context map[string]interface{}
	// Fatal errors abort the whole run; non-fatal errors stop only the
	// current file or stream.
	Fatal bool
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a validation error.
func NewValidationError(step, message string) *StepError {
	return &StepError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
		Fatal:   true,
	}
}

// NewStructuralPathError reports a file path that does not match the export
// layout. Never recoverable for the file: guessing identity corrupts the
// ledger's meaning.
func NewStructuralPathError(step, path string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeStructuralPath,
		Step:    step,
		Message: "file path does not match export layout",
		Cause:   cause,
		Context: map[string]interface{}{"path": path},
	}
}

// NewClassificationError reports counts that do not reconcile with row
// counts. Always a logic bug.
func NewClassificationError(step, path string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeClassification,
		Step:    step,
		Message: "classification counts do not reconcile",
		Cause:   cause,
		Context: map[string]interface{}{"path": path},
	}
}

// NewIOError reports a copy/read/write failure on a specific file.
func NewIOError(step, path string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeIO,
		Step:    step,
		Message: "file operation failed",
		Cause:   cause,
		Context: map[string]interface{}{"path": path},
	}
}

// NewSizeBudgetError reports a chunk that exceeds the maximum shard size and
// cannot be repaired by rotation.
func NewSizeBudgetError(step string, stream string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeSizeBudget,
		Step:    step,
		Message: "chunk exceeds output shard budget",
		Cause:   cause,
		Context: map[string]interface{}{"stream": stream},
	}
}

// NewLedgerError reports a ledger write failure. Always fatal: the ledger is
// the audit contract for the run.
func NewLedgerError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeLedger,
		Step:    step,
		Message: "duplicate ledger update failed",
		Cause:   cause,
		Fatal:   true,
	}
}

// NewExecutionError wraps an unexpected failure inside a step.
func NewExecutionError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeExecution,
		Step:    step,
		Message: "step execution failed",
		Cause:   cause,
		Fatal:   true,
	}
}

// NewCancellationError reports a run stopped by its context.
func NewCancellationError(step string, cause error) *StepError {
	return &StepError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "run cancelled",
		Cause:   cause,
		Fatal:   true,
	}
}
