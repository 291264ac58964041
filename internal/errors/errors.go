// Package errors defines the application error taxonomy and its central handler.
package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes. Handlers branch on these through IsCode.
const (
	CodeValidation    = "E100"
	CodeDatabase      = "E200"
	CodeUpstream      = "E300"
	CodeState         = "E400"
	CodeRateLimit     = "E500"
	CodeConsistency   = "E600"
	CodeDataQuality   = "E610"
	CodeExhausted     = "E700"
	CodeConstraint    = "E800"
	CodeShareRegister = "E900"
)

const genericUserMessage = "Sorry, something went wrong while processing your request. Please try again."

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	RetryAfter  int // seconds, rate limit errors only
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// IsCode reports whether err wraps an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code == code
	}

	return false
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: genericUserMessage,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewExternalAPIError reports a failed call to an upstream API. It is never retried automatically.
func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeUpstream,
		Message:     fmt.Sprintf("External API error: %s", apiName),
		UserMessage: genericUserMessage,
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

// NewStateError reports an action that does not apply to the request's current state.
func NewStateError(msg string, cause error) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This search is no longer active.",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		RetryAfter:  retryAfter,
		cause:       nil,
	}
}

// NewConsistencyError reports stored state that violates an invariant the engine relies on.
func NewConsistencyError(msg string) *AppError {
	return &AppError{
		Code:        CodeConsistency,
		Message:     msg,
		UserMessage: genericUserMessage,
		Severity:    SeverityCritical,
		Retryable:   false,
		cause:       nil,
	}
}

// NewDataQualityError reports an upstream object that cannot be displayed.
func NewDataQualityError(msg string, cause error) *AppError {
	return &AppError{
		Code:        CodeDataQuality,
		Message:     msg,
		UserMessage: genericUserMessage,
		Severity:    SeverityHigh,
		Retryable:   false,
		cause:       cause,
	}
}

// NewExhaustedError is the normal "no more results" outcome.
func NewExhaustedError(search string) *AppError {
	return &AppError{
		Code:        CodeExhausted,
		Message:     fmt.Sprintf("no more results for %q", search),
		UserMessage: "No more results.",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

// NewConstraintError reports a rejected write or an unexpected row count.
func NewConstraintError(msg string, cause error) *AppError {
	return &AppError{
		Code:        CodeConstraint,
		Message:     msg,
		UserMessage: genericUserMessage,
		Severity:    SeverityHigh,
		Retryable:   false,
		cause:       cause,
	}
}

// NewShareRegistrationError is logged only and never shown to users.
func NewShareRegistrationError(imageID string, cause error) *AppError {
	return &AppError{
		Code:        CodeShareRegister,
		Message:     fmt.Sprintf("register share for image %s", imageID),
		UserMessage: "",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       cause,
	}
}
