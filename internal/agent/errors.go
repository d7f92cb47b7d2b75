package agent

import "errors"

// ErrorCode is a string type used for structured error reporting in results.
// Using a custom type ensures only predefined constants appear where an
// ErrorCode is expected.
type ErrorCode string

const (
	// ErrCodeCapabilityNotDeclared: the action type is not in the agent's
	// capability list. Fatal, never retried.
	ErrCodeCapabilityNotDeclared ErrorCode = "CAPABILITY_NOT_DECLARED"
	// ErrCodeSafetyDenied: a constraint predicate vetoed the action.
	ErrCodeSafetyDenied ErrorCode = "SAFETY_DENIED"
	// ErrCodeExecutionFailure: the handler failed on every attempt.
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	// ErrCodeValidationFailure: work was applied but post-hoc validation
	// (tests, re-scan) did not pass. Validation is authoritative over
	// intermediate success signals.
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	// ErrCodeInvalidParameters: the action payload is missing or malformed.
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	// ErrCodeCancelled: the surrounding context was cancelled between
	// attempts.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

var (
	// ErrNonRetryable marks a handler error that must not consume further
	// retry attempts. Wrap with fmt.Errorf("...: %w", ErrNonRetryable).
	ErrNonRetryable = errors.New("non-retryable")

	// ErrValidation marks a failure where the work applied but validation
	// rejected the outcome. It surfaces as VALIDATION_FAILURE in the result.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidParameters marks a malformed action payload. Non-retryable
	// by definition; retrying an unchanged payload cannot succeed.
	ErrInvalidParameters = errors.New("invalid parameters")
)

func codeForError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrCodeValidationFailure
	case errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeExecutionFailure
	}
}
