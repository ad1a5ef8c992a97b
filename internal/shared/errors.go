package shared

import (
	"context"
	"errors"
	"fmt"
	"net"

	"ztime/pkg/ztime"
)

// Common errors that can be used across the application
var (
	// ErrNotFound indicates that a requested resource (for example a job) was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates that the request conflicts with current state
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents resource not found errors
	KindNotFound
	// KindValidation represents input validation errors, including expression parse failures
	KindValidation
	// KindConflict represents resource conflict errors
	KindConflict
	// KindInternal represents internal errors
	KindInternal
	// KindTimeout represents timeout errors
	KindTimeout
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindNotFound:   ErrNotFound,
	KindValidation: ErrValidation,
	KindConflict:   ErrConflict,
	KindInternal:   ErrInternal,
	KindTimeout:    ErrTimeout,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindConflict, ErrConflict},
	{KindInternal, ErrInternal},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
//
// The classification priority (highest to lowest):
//  1. KindCanceled (context.Canceled)
//  2. KindTimeout (context.DeadlineExceeded, ErrTimeout, net timeout errors)
//  3. KindNotFound, KindValidation (ErrValidation or ztime.ErrParse), KindConflict
//  4. KindInternal
//
// Returns KindUnknown for unrecognized errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		case KindValidation:
			if IsValidation(err) {
				return KindValidation
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ErrorOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func ErrorOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps an error with the sentinel error for the given kind,
// preserving the original error through error wrapping.
// If err is nil, returns the sentinel error for the kind.
// If kind is KindUnknown or KindCanceled, returns the original error unchanged.
// Marking an error with a kind it already has returns the error unchanged.
//
//	if _, err := scheduler.AddExprJob(name, expr, job); err != nil {
//	    return shared.MarkKind(err, shared.KindValidation)
//	}
func MarkKind(err error, kind Kind) error {
	if err == nil {
		return ErrorOf(kind)
	}

	sentinel := ErrorOf(kind)
	if sentinel == nil {
		return err
	}
	if KindOf(err) == kind {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// If err is nil, Wrap returns nil. If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	context := fmt.Sprintf(format, args...)
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether the error indicates a resource not found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether the error indicates input validation failure.
// Parse errors from ztime count as validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ztime.ErrParse)
}

// IsConflict reports whether the error indicates a resource conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInternal reports whether the error indicates an internal error.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
