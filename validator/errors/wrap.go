package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapValidatorError wraps an error as a ValidatorError if it isn't already one
func WrapValidatorError(err error, code ErrorCode, component, message string) *ValidatorError {
	if err == nil {
		return nil
	}

	var vErr *ValidatorError
	if errors.As(err, &vErr) {
		vErr.WithContext("wrapped_message", message)
		if component != "" && vErr.Component == "" {
			vErr.Component = component
		}
		return vErr
	}

	return New(code, component, message, err)
}

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsCode checks if an error is a ValidatorError with specific code
func IsCode(err error, code ErrorCode) bool {
	var vErr *ValidatorError
	if errors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}

// CodeOf returns the code of a ValidatorError, or ErrCodeUnexpected for anything else.
func CodeOf(err error) ErrorCode {
	var vErr *ValidatorError
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	return ErrCodeUnexpected
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		return timeout.Timeout()
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var vErr *ValidatorError
	if errors.As(err, &vErr) {
		return vErr.IsRetryable()
	}

	if IsTimeout(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"unavailable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
