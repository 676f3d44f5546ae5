package macroplanner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Code is a stable, caller-facing failure code.
type Code string

const (
	CodeInfeasiblePlan   Code = "INFEASIBLE_PLAN"
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeDisabledForUser  Code = "DISABLED_FOR_USER"
	CodeGenerationFailed Code = "GENERATION_FAILED"
	CodeTimeout          Code = "TIMEOUT"
	CodeUnknown          Code = "UNKNOWN"
)

// Error is the typed failure every pipeline operation surfaces. Callers switch
// on Code and consult Retryable to decide whether to offer a retry.
type Error struct {
	Code      Code
	Message   string
	Retryable bool

	// ResetsAt is set for QUOTA_EXCEEDED: the next UTC midnight.
	ResetsAt time.Time
	// RetryAfter is set for RATE_LIMITED: a short backoff hint.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the failure code from an error chain, mapping unrecognized
// errors to UNKNOWN and context deadline errors to TIMEOUT.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnknown
}

// NewInfeasiblePlan reports a target that fails the static feasibility checks.
// Non-retryable: the numbers themselves are wrong.
func NewInfeasiblePlan(format string, args ...any) *Error {
	return &Error{Code: CodeInfeasiblePlan, Message: fmt.Sprintf(format, args...)}
}

// NewQuotaExceeded reports an exhausted daily quota. Not retryable before
// resetsAt.
func NewQuotaExceeded(resetsAt time.Time) *Error {
	return &Error{
		Code:     CodeQuotaExceeded,
		Message:  fmt.Sprintf("daily generation quota exhausted, resets at %s", resetsAt.Format(time.RFC3339)),
		ResetsAt: resetsAt,
	}
}

// NewRateLimited reports a burst-rate rejection. Retryable after a short wait.
func NewRateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("too many generation calls, retry in %s", retryAfter.Round(time.Second)),
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// NewDisabledForUser reports the administrative kill switch.
func NewDisabledForUser(userID string) *Error {
	return &Error{Code: CodeDisabledForUser, Message: fmt.Sprintf("generation disabled for user %s", userID)}
}

// NewGenerationFailed wraps a malformed or empty model response, or tool-loop
// exhaustion. Retryable at the batch level.
func NewGenerationFailed(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeGenerationFailed, Message: fmt.Sprintf(format, args...), Retryable: true, cause: cause}
}

// NewTimeout reports that the external service did not respond in time.
func NewTimeout(cause error) *Error {
	return &Error{Code: CodeTimeout, Message: "generative service did not respond in time", Retryable: true, cause: cause}
}

// NewUnknown wraps an unclassified failure, preserving the original detail.
func NewUnknown(cause error) *Error {
	return &Error{Code: CodeUnknown, Message: "unexpected failure", cause: cause}
}
