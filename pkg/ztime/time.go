package ztime

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ISOLayout renders a Time as YYYY-MM-DDTHH:mm:ss.sssZ.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// maxMillis bounds FromFloat to the range of an ECMAScript date (±100,000,000 days).
const maxMillis = 8.64e15

// Time is an immutable instant. Every derivation returns a new value.
//
// The instant keeps the nanosecond resolution of the native value it came
// from; Millis reports it as epoch milliseconds, rounded down.
type Time struct {
	t time.Time
}

// Now returns the current instant of the system clock.
func Now() Time {
	return FromTime(time.Now())
}

// FromTime wraps a native time value.
func FromTime(t time.Time) Time {
	// Round(0) drops the monotonic reading; instants compare by wall time only.
	return Time{t: t.Round(0).UTC()}
}

// FromMillis builds a Time from epoch milliseconds.
func FromMillis(ms int64) Time {
	return Time{t: time.UnixMilli(ms).UTC()}
}

// FromFloat builds a Time from a possibly fractional count of epoch
// milliseconds. NaN, infinities and values beyond ±8.64e15 are rejected.
func FromFloat(ms float64) (Time, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxMillis {
		return Time{}, parseErr(CodeInvalidValue, "invalid value", strconv.FormatFloat(ms, 'g', -1, 64))
	}
	whole := math.Floor(ms)
	frac := time.Duration((ms - whole) * float64(time.Millisecond))
	return Time{t: time.UnixMilli(int64(whole)).Add(frac).UTC()}, nil
}

// Parse resolves a date/time expression against the system clock.
func Parse(text string) (Time, error) {
	return defaultParser.Parse(text)
}

// MustParse is like Parse but panics on error.
func MustParse(text string) Time {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

// Millis returns the instant as epoch milliseconds, rounded down.
func (t Time) Millis() int64 {
	return t.t.UnixMilli()
}

// Time returns the native UTC view of the instant.
func (t Time) Time() time.Time {
	return t.t
}

// ISO renders the instant with ISOLayout.
func (t Time) ISO() string {
	return t.t.Format(ISOLayout)
}

func (t Time) String() string {
	return t.ISO()
}

// Equal reports whether both values denote the same instant.
func (t Time) Equal(u Time) bool { return t.t.Equal(u.t) }

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool { return t.t.Before(u.t) }

// After reports whether t is later than u.
func (t Time) After(u Time) bool { return t.t.After(u.t) }

// Compare returns -1, 0 or +1 as t is before, equal to or after u.
func (t Time) Compare(u Time) int { return t.t.Compare(u.t) }

// Sub returns t-u as a milliseconds-only Duration, computed on the Millis views.
func (t Time) Sub(u Time) Duration {
	return Millis(t.Millis() - u.Millis())
}

// Plus returns t shifted forward by d.
func (t Time) Plus(d Duration) Time {
	return t.shift(d.ToMilliseconds())
}

// Minus returns t shifted backward by d. Plus and Minus are exact inverses.
func (t Time) Minus(d Duration) Time {
	return t.shift(-d.ToMilliseconds())
}

// shift moves t by ms milliseconds in epoch-millisecond arithmetic, so that
// offsets beyond the range of time.Duration stay exact. The sub-millisecond
// part of t is carried over.
func (t Time) shift(ms int64) Time {
	if ms == 0 {
		return t
	}
	sub := time.Duration(t.t.Nanosecond() % int(time.Millisecond))
	return Time{t: time.UnixMilli(t.Millis() + ms).Add(sub).UTC()}
}

// MarshalJSON encodes the instant as an ISO string.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ISO())
}

// UnmarshalJSON accepts a string expression or a number of epoch milliseconds.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return parseErr(CodeInvalidValue, "invalid value", string(data))
	}
	parsed, err := FromFloat(ms)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.ISO()), nil
}

// UnmarshalText parses an expression with the system clock.
func (t *Time) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
