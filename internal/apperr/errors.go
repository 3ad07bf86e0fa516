package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType is the closed set of failure classes the core reports.
type ErrorType int

const (
	ErrNetwork ErrorType = iota
	ErrModelUnavailable
	ErrInvalidInput
	ErrResourceExhausted
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrNetwork:
		return "Network"
	case ErrModelUnavailable:
		return "ModelUnavailable"
	case ErrInvalidInput:
		return "InvalidInput"
	case ErrResourceExhausted:
		return "ResourceExhausted"
	default:
		return "Unknown"
	}
}

// Error carries a classified failure with operation context.
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, op, message string) *Error {
	return &Error{
		Type:    errorType,
		Op:      op,
		Message: message,
		Context: make(map[string]any),
	}
}

func Wrap(errorType ErrorType, op, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Op:      op,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s: %s", e.Type.String(), e.Op, e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// IsType reports whether err carries the given classification.
func IsType(err error, errorType ErrorType) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// Classify maps an arbitrary error onto the taxonomy. Already-classified
// errors keep their type; everything else is matched on well-known error
// values first, message heuristics second.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "network", "connection", "timeout", "timed out", "unreachable", "no such host", "dns", "offline"):
		return ErrNetwork
	case containsAny(msg, "model not found", "model unavailable", "model is not downloaded", "model missing"):
		return ErrModelUnavailable
	case containsAny(msg, "invalid input", "invalid argument", "unsupported language"):
		return ErrInvalidInput
	case containsAny(msg, "no space", "disk full", "out of memory", "resource exhausted", "quota exceeded"):
		return ErrResourceExhausted
	default:
		return ErrUnknown
	}
}

// IsRetryable reports whether a failure class is worth retrying.
// Only transient conditions qualify.
func IsRetryable(errorType ErrorType) bool {
	return errorType == ErrNetwork || errorType == ErrModelUnavailable
}

// UserMessage returns an actionable message for a failure class.
func UserMessage(errorType ErrorType) string {
	switch errorType {
	case ErrNetwork:
		return "Network error. Please check your connection and try again, or connect to WiFi"
	case ErrModelUnavailable:
		return "Translation model is not available yet. Download the language model and try again"
	case ErrInvalidInput:
		return "Invalid input. Please check the text or image and the selected languages"
	case ErrResourceExhausted:
		return "Not enough storage or memory to complete the operation. Free up space and try again"
	default:
		return "An unexpected error occurred. Please try again"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
