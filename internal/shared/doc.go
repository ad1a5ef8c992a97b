// Package shared contains common error types and utilities for error
// handling across the application.
//
// # Error Classification
//
// Use KindOf() to classify errors into categories:
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    // bad expression or duration
//	case shared.KindNotFound:
//	    // unknown job
//	default:
//	    // other errors
//	}
//
// Errors produced by the ztime parser (ztime.ErrParse) classify as
// KindValidation without explicit marking.
//
// # Marking
//
// MarkKind attaches a kind to an arbitrary error while keeping the original
// reachable through errors.Is and errors.As:
//
//	err = shared.MarkKind(err, shared.KindConflict)
//	shared.IsConflict(err) // true
package shared
