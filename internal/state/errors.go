package state

import "fmt"

// ErrorCode is a machine-readable identifier attached to state-engine errors,
// so callers (CLI, web API) can render "Usage:"/"Hint:" text without string
// matching on Error().
type ErrorCode string

const (
	ErrFileNotFound     ErrorCode = "FileNotFound"
	ErrInvalidJSON      ErrorCode = "InvalidJSON"
	ErrSchemaViolation  ErrorCode = "SchemaViolation"

	ErrNoPhases               ErrorCode = "NO_PHASES"
	ErrActivePhaseIDMissing   ErrorCode = "ACTIVE_PHASE_ID_MISSING"
	ErrActivePhaseIDNotFound  ErrorCode = "ACTIVE_PHASE_ID_NOT_FOUND"
)

// Error is a sum-typed result carrying a machine code, a human message, and
// an optional hint — replacing the thrown-exception style of the source
// system (spec.md §9 Design Note: "Exceptions-for-control-flow -> result
// values").
type Error struct {
	Code    ErrorCode
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newErr(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
