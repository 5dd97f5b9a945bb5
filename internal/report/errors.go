package report

import (
	"errors"
	"fmt"
	"strings"
)

// ProcessError represents a structural problem that rejects a whole report.
type ProcessError struct {
	// Code identifies the error category.
	Code ProcessErrorCode

	// Message is a human-readable description.
	Message string
}

// ProcessErrorCode categorizes report-level failures.
type ProcessErrorCode string

const (
	// ErrCodeNoCrashThread indicates no thread is marked as the crash thread.
	ErrCodeNoCrashThread ProcessErrorCode = "NO_CRASH_THREAD"

	// ErrCodeMultipleCrashThreads indicates more than one thread claims to be
	// the crash thread.
	ErrCodeMultipleCrashThreads ProcessErrorCode = "MULTIPLE_CRASH_THREADS"

	// ErrCodeNoUsableHashKey indicates no key strategy covers every frame.
	// Unreachable for a validated report; treated as an invariant violation.
	ErrCodeNoUsableHashKey ProcessErrorCode = "NO_USABLE_HASH_KEY"

	// ErrCodeNoUsableStack indicates a report cannot produce a canonical
	// stack for comparison.
	ErrCodeNoUsableStack ProcessErrorCode = "NO_USABLE_STACK"
)

// Error implements the error interface.
func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoCrashThread returns true if the error reports a missing crash thread.
// Uses errors.As to handle wrapped errors.
func IsNoCrashThread(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Code == ErrCodeNoCrashThread
}

// IsMultipleCrashThreads returns true if the error reports more than one
// crash thread.
func IsMultipleCrashThreads(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Code == ErrCodeMultipleCrashThreads
}

// IsNoUsableHashKey returns true if the error reports that no hash key
// strategy was usable.
func IsNoUsableHashKey(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Code == ErrCodeNoUsableHashKey
}

// IsNoUsableStack returns true if the error reports a stack unusable for
// comparison.
func IsNoUsableStack(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Code == ErrCodeNoUsableStack
}

// Validation error codes (E100-E109).
const (
	// ErrMalformedReport: the payload is not valid JSON or not an object.
	ErrMalformedReport = "E100"
	// ErrSchemaConstraint: a field violates the report schema.
	ErrSchemaConstraint = "E101"
)

// ValidationError names one field-level schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// SchemaError aggregates every schema violation found in one report.
// Validation collects all errors rather than failing fast.
type SchemaError struct {
	Violations []ValidationError
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if len(e.Violations) == 1 {
		return "schema violation: " + e.Violations[0].Error()
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%d schema violations: %s", len(e.Violations), strings.Join(msgs, "; "))
}

// AsSchemaError unwraps err into a *SchemaError if possible.
func AsSchemaError(err error) (*SchemaError, bool) {
	var se *SchemaError
	ok := errors.As(err, &se)
	return se, ok
}
