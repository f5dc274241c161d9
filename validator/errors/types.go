package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeSyncTimeout indicates a membership refresh did not complete in time
	ErrCodeSyncTimeout ErrorCode = "SYNC_TIMEOUT"

	// ErrCodeDispatchAbsence indicates a queried peer did not answer
	ErrCodeDispatchAbsence ErrorCode = "DISPATCH_ABSENCE"

	// ErrCodeCommitFailure indicates the ledger rejected a weight submission
	ErrCodeCommitFailure ErrorCode = "COMMIT_FAILURE"

	// ErrCodeConnectionLost indicates the ledger handle became unusable
	ErrCodeConnectionLost ErrorCode = "CONNECTION_LOST"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeDatabase indicates database operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeUnexpected indicates any other failure surfaced during a round
	ErrCodeUnexpected ErrorCode = "UNEXPECTED"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// ValidatorError represents an error raised by one of the validator components
type ValidatorError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Severity  Severity               `json:"severity"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// New creates a new ValidatorError
func New(code ErrorCode, component, message string, cause error) *ValidatorError {
	return &ValidatorError{
		Code:      code,
		Message:   message,
		Component: component,
		Severity:  determineSeverity(code),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ValidatorError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message)
	if e.Component != "" {
		msg = fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Code, e.Severity, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *ValidatorError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *ValidatorError) WithContext(key string, value interface{}) *ValidatorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *ValidatorError) WithSeverity(severity Severity) *ValidatorError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *ValidatorError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeSyncTimeout, ErrCodeConnectionLost:
		return true
	case ErrCodeDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

// determineSeverity determines the default severity based on error code
func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeUnexpected:
		return SeverityCritical
	case ErrCodeDatabase, ErrCodeConnectionLost:
		return SeverityHigh
	case ErrCodeCommitFailure, ErrCodeSyncTimeout, ErrCodeNetwork:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewSyncTimeoutError creates a membership sync timeout error
func NewSyncTimeoutError(message string, cause error) *ValidatorError {
	return New(ErrCodeSyncTimeout, "membership", message, cause)
}

// NewDispatchAbsenceError creates an error describing a peer that did not answer
func NewDispatchAbsenceError(message string, cause error) *ValidatorError {
	return New(ErrCodeDispatchAbsence, "dispatch", message, cause)
}

// NewCommitFailureError creates a weight commit error
func NewCommitFailureError(message string, cause error) *ValidatorError {
	return New(ErrCodeCommitFailure, "commit", message, cause)
}

// NewConnectionLostError creates a ledger connection error
func NewConnectionLostError(message string, cause error) *ValidatorError {
	return New(ErrCodeConnectionLost, "ledger", message, cause)
}

// NewNetworkError creates a network error
func NewNetworkError(component, message string, cause error) *ValidatorError {
	return New(ErrCodeNetwork, component, message, cause)
}

// NewDatabaseError creates a database error
func NewDatabaseError(message string, cause error) *ValidatorError {
	return New(ErrCodeDatabase, "db", message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *ValidatorError {
	return New(ErrCodeConfig, "config", message, nil)
}

// NewValidationError creates a validation error
func NewValidationError(component, message string) *ValidatorError {
	return New(ErrCodeValidation, component, message, nil)
}

// NewUnexpectedError creates an error for an unexpected round failure
func NewUnexpectedError(message string, cause error) *ValidatorError {
	return New(ErrCodeUnexpected, "core", message, cause)
}
