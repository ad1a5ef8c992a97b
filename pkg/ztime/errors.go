package ztime

import (
	"errors"
	"fmt"
)

// ErrParse is matched by every *ParseError via errors.Is.
var ErrParse = errors.New("ztime: parse error")

// Parse error codes. They identify which step rejected the input.
const (
	CodeInvalidDate     = "ZT010" // ISO-8601 text that names no real date
	CodeUnknownOrigin   = "ZT011" // no origin rule matched
	CodeInvalidDuration = "ZT012" // offset segment is not a duration
	CodeMissingSign     = "ZT013" // offset segment without '+' or '-'
	CodeInvalidValue    = "ZT014" // NaN, infinite or out of range value
)

// ParseError reports input that could not be turned into a Time or Duration.
type ParseError struct {
	// Text is the offending input (the whole expression or the failing segment).
	Text string
	// Code is one of the Code* constants.
	Code string
	// Reason is a short human readable explanation.
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ztime: %s %s: %q", e.Code, e.Reason, e.Text)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func parseErr(code, reason, text string) *ParseError {
	return &ParseError{Text: text, Code: code, Reason: reason}
}
