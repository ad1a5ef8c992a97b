package ztime

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fixed conversion factors. UTC days are always 24h: no leap seconds, no DST.
const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
	msPerWeek   = 7 * msPerDay
)

// Duration is a calendar-like offset. Unset fields count as zero and fields
// are never normalized: Hours: 30 stays 30 hours.
type Duration struct {
	Weeks        int64 `json:"weeks,omitempty"`
	Days         int64 `json:"days,omitempty"`
	Hours        int64 `json:"hours,omitempty"`
	Minutes      int64 `json:"minutes,omitempty"`
	Seconds      int64 `json:"seconds,omitempty"`
	Milliseconds int64 `json:"milliseconds,omitempty"`
}

// Millis is a milliseconds-only Duration, the form a bare number takes.
func Millis(ms int64) Duration {
	return Duration{Milliseconds: ms}
}

// FromStd converts a Go duration. Anything below a millisecond is dropped.
func FromStd(d time.Duration) Duration {
	return Millis(d.Milliseconds())
}

// ToMilliseconds returns the total length in milliseconds.
func (d Duration) ToMilliseconds() int64 {
	return d.Weeks*msPerWeek +
		d.Days*msPerDay +
		d.Hours*msPerHour +
		d.Minutes*msPerMinute +
		d.Seconds*msPerSecond +
		d.Milliseconds
}

// maxStdMillis is the longest span time.Duration can hold, in milliseconds.
const maxStdMillis = math.MaxInt64 / int64(time.Millisecond)

// Std converts d to a Go duration. Lengths beyond about 292 years saturate
// at the bounds of time.Duration; Time arithmetic does not go through Std.
func (d Duration) Std() time.Duration {
	ms := d.ToMilliseconds()
	switch {
	case ms > maxStdMillis:
		return math.MaxInt64
	case ms < -maxStdMillis:
		return math.MinInt64
	}
	return time.Duration(ms) * time.Millisecond
}

// Neg returns d with every field negated.
func (d Duration) Neg() Duration {
	return Duration{
		Weeks:        -d.Weeks,
		Days:         -d.Days,
		Hours:        -d.Hours,
		Minutes:      -d.Minutes,
		Seconds:      -d.Seconds,
		Milliseconds: -d.Milliseconds,
	}
}

// IsZero reports whether d adds up to zero milliseconds.
func (d Duration) IsZero() bool {
	return d.ToMilliseconds() == 0
}

// String renders the normalized total in unit form, e.g. "1d2h30m" or "-250ms".
// The result is accepted by ParseDuration when it is not negative.
func (d Duration) String() string {
	total := d.ToMilliseconds()
	if total == 0 {
		return "0ms"
	}
	var b strings.Builder
	if total < 0 {
		b.WriteByte('-')
		total = -total
	}
	units := []struct {
		suffix string
		size   int64
	}{
		{"w", msPerWeek},
		{"d", msPerDay},
		{"h", msPerHour},
		{"m", msPerMinute},
		{"s", msPerSecond},
		{"ms", 1},
	}
	for _, u := range units {
		if n := total / u.size; n > 0 {
			b.WriteString(strconv.FormatInt(n, 10))
			b.WriteString(u.suffix)
			total -= n * u.size
		}
	}
	return b.String()
}

// UnmarshalJSON accepts an object with the Duration fields, a number of
// milliseconds, or a string understood by ParseDuration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case len(data) > 0 && data[0] == '{':
		type plain Duration
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*d = Duration(p)
		return nil
	default:
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return parseErr(CodeInvalidDuration, "invalid duration", string(data))
		}
		*d = Millis(ms)
		return nil
	}
}

type durationRule struct {
	name  string
	re    *regexp.Regexp
	build func(m []string) (Duration, bool)
}

// durationRules are tried in order; the first match wins.
var durationRules = []durationRule{
	{
		// HH[:MM[:SS]]
		name: "clock",
		re:   regexp.MustCompile(`^([0-9]+)(?::([0-9]+))?(?::([0-9]+))?$`),
		build: func(m []string) (Duration, bool) {
			hh, ok1 := atoi64(m[1])
			mm, ok2 := atoi64(m[2])
			ss, ok3 := atoi64(m[3])
			return Duration{Hours: hh, Minutes: mm, Seconds: ss}, ok1 && ok2 && ok3
		},
	},
	{
		// 1w2d3h4m5s6ms, every part optional but at least one present
		name: "units",
		re:   regexp.MustCompile(`^(?:([0-9]+)w)?(?:([0-9]+)d)?(?:([0-9]+)h)?(?:([0-9]+)m)?(?:([0-9]+)s)?(?:([0-9]+)ms)?$`),
		build: func(m []string) (Duration, bool) {
			if strings.Join(m[1:], "") == "" {
				return Duration{}, false
			}
			var (
				d  Duration
				ok = true
			)
			for i, dst := range []*int64{&d.Weeks, &d.Days, &d.Hours, &d.Minutes, &d.Seconds, &d.Milliseconds} {
				v, good := atoi64(m[i+1])
				*dst = v
				ok = ok && good
			}
			return d, ok
		},
	},
}

// ParseDuration parses "HH[:MM[:SS]]" (hours, minutes, seconds) or the unit
// form "[Nw][Nd][Nh][Nm][Ns][Nms]". Surrounding whitespace is ignored.
func ParseDuration(text string) (Duration, error) {
	s := strings.TrimSpace(text)
	for _, r := range durationRules {
		m := r.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if d, ok := r.build(m); ok {
			return d, nil
		}
	}
	return Duration{}, parseErr(CodeInvalidDuration, "invalid duration", text)
}

// atoi64 parses an optional decimal field; empty means zero.
func atoi64(s string) (int64, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}
