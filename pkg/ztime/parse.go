package ztime

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parser resolves date/time expressions:
//
//	DATETIME := ORIGIN (WS* ('+'|'-') WS* DURATION)*
//	ORIGIN   := '' | 'now' | 'today'
//	          | ['next'] WEEKDAY
//	          | HH[:MM[:SS]]
//	          | YYYY-MM-DD[THH:MM[:SS[.fff]]]Z
//	DURATION := HH[:MM[:SS]] | [Nw][Nd][Nh][Nm][Ns][Nms]
//
// Origins without an explicit date resolve to the closest future occurrence.
// A Parser is safe for concurrent use.
type Parser struct {
	clock  Clock
	logger *slog.Logger
}

// NewParser creates a Parser. Only WithClock and WithLogger apply.
func NewParser(opts ...Option) *Parser {
	o := newOptions(opts)
	return &Parser{clock: o.clock, logger: o.logger}
}

var defaultParser = NewParser()

// ResolveOrigin resolves a bare origin (no offsets) against the system clock.
func ResolveOrigin(text string) (Time, error) {
	return defaultParser.ResolveOrigin(text)
}

type originRule struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, now time.Time) (time.Time, bool)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// originRules are tried in order; the first match wins. A resolver returning
// false rejects text its pattern accepted (an impossible calendar date).
var originRules = []originRule{
	{
		name: "now",
		re:   regexp.MustCompile(`(?i)^(?:|now|today)$`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return now, true
		},
	},
	{
		name: "weekday",
		re:   regexp.MustCompile(`(?i)^(?:next\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)$`),
		resolve: func(m []string, now time.Time) (time.Time, bool) {
			target := weekdays[strings.ToLower(m[1])]
			// Today never qualifies: a zero delta becomes a full week.
			delta := int(target - now.Weekday())
			if delta < 1 {
				delta += 7
			}
			return now.AddDate(0, 0, delta), true
		},
	},
	{
		name: "clock",
		re:   regexp.MustCompile(`^([0-9]+)(?::([0-9]+))?(?::([0-9]+))?$`),
		resolve: func(m []string, now time.Time) (time.Time, bool) {
			hh, ok1 := atoi32(m[1])
			mm, ok2 := atoi32(m[2])
			ss, ok3 := atoi32(m[3])
			if !ok1 || !ok2 || !ok3 {
				return time.Time{}, false
			}
			y, mo, d := now.Date()
			result := time.Date(y, mo, d, hh, mm, ss, 0, time.UTC)
			// Calendar day steps, not fixed 24h additions.
			for !result.After(now) {
				result = result.AddDate(0, 0, 1)
			}
			return result, true
		},
	},
	{
		name: "iso",
		re:   regexp.MustCompile(`^([0-9]{4})-([0-9]{2})-([0-9]{2})(?:T([0-9]{2}):([0-9]{2})(?::([0-9]{2})(?:\.([0-9]+))?)?)?Z$`),
		resolve: func(m []string, _ time.Time) (time.Time, bool) {
			return isoDate(m)
		},
	},
}

func isoDate(m []string) (time.Time, bool) {
	var f [6]int
	for i := range f {
		v, ok := atoi32(m[i+1])
		if !ok {
			return time.Time{}, false
		}
		f[i] = v
	}
	year, month, day, hour, minute, second := f[0], f[1], f[2], f[3], f[4], f[5]
	// Fractions are read to millisecond precision.
	frac := (m[7] + "000")[:3]
	ms, _ := strconv.Atoi(frac)

	// 24:00:00.000 is the midnight that ends the day.
	endOfDay := hour == 24 && minute == 0 && second == 0 && ms == 0
	if endOfDay {
		hour = 0
	}
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, ms*int(time.Millisecond), time.UTC)
	if t.Day() != day {
		// time.Date normalized an overflowing day such as Feb 30.
		return time.Time{}, false
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// ResolveOrigin resolves a bare origin (no offsets).
func (p *Parser) ResolveOrigin(text string) (Time, error) {
	return p.resolveOrigin(text, p.clock.Now())
}

func (p *Parser) resolveOrigin(text string, now time.Time) (Time, error) {
	s := strings.TrimSpace(text)
	now = now.Round(0).UTC()
	for _, r := range originRules {
		m := r.re.FindStringSubmatch(s)
		p.logger.Debug("origin rule", slog.String("text", s), slog.String("rule", r.name), slog.Bool("matched", m != nil))
		if m == nil {
			continue
		}
		t, ok := r.resolve(m, now)
		if !ok {
			return Time{}, parseErr(CodeInvalidDate, "invalid date", text)
		}
		return Time{t: t}, nil
	}
	return Time{}, parseErr(CodeUnknownOrigin, "unrecognized origin", text)
}

// offsetSign marks the start of each signed offset: a sign at the very start
// of the text or after whitespace.
var offsetSign = regexp.MustCompile(`(?:\s+|^)([+-])`)

// Parse resolves a full expression using the parser's clock.
func (p *Parser) Parse(text string) (Time, error) {
	return p.ParseAt(text, p.clock.Now())
}

// ParseAt resolves a full expression as if the current instant were now.
//
// The origin is resolved first, then offsets are applied left to right.
// A leading offset with no origin, such as "+01:30", is relative to now.
func (p *Parser) ParseAt(text string, now time.Time) (Time, error) {
	locs := offsetSign.FindAllStringSubmatchIndex(text, -1)

	originEnd := len(text)
	if len(locs) > 0 {
		originEnd = locs[0][0]
	}
	cur, err := p.resolveOrigin(text[:originEnd], now)
	if err != nil {
		return Time{}, err
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := text[loc[1]:end]
		d, err := ParseDuration(segment)
		if err != nil {
			return Time{}, err
		}
		p.logger.Debug("offset", slog.String("sign", text[loc[2]:loc[3]]), slog.String("duration", d.String()))

		switch text[loc[2]:loc[3]] {
		case "+":
			cur = cur.Plus(d)
		case "-":
			cur = cur.Minus(d)
		default:
			return Time{}, parseErr(CodeMissingSign, "offset without sign", text)
		}
	}
	return cur, nil
}

func atoi32(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 10, 32)
	return int(v), err == nil
}
