// Package timeparse turns Spanish free-text time phrases ("en 10 minutos",
// "mañana a las 9", "el 3 de marzo a las 18:30") into concrete instants.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnrecognized means no supported time phrase was found in the text.
	ErrUnrecognized = errors.New("no time expression recognized")
	// ErrInvalidTime means a phrase was found but names a time or date that
	// does not exist (hour 25, 31 de febrero, "en 0 minutos").
	ErrInvalidTime = errors.New("invalid date or time")
)

// ParseError is returned for every parse failure. It unwraps to
// ErrUnrecognized or ErrInvalidTime.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing time expression %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Match is a recognized time phrase. Start and End are byte offsets of the
// phrase inside the parsed text.
type Match struct {
	At    time.Time
	Start int
	End   int
}

var (
	reMinutes  = regexp.MustCompile(`(?i)\ben\s+(\d{1,6})\s+minutos?\b`)
	reHours    = regexp.MustCompile(`(?i)\ben\s+(\d{1,4})\s+horas?\b`)
	reTomorrow = regexp.MustCompile(`(?i)\bma(?:ñ|n)ana\s+a\s+las?\s+(\d{1,2})(?::(\d{2}))?`)
	reClock    = regexp.MustCompile(`(?i)\ba\s+las?\s+(\d{1,2}):(\d{2})`)
	reDate     = regexp.MustCompile(`(?i)\bel\s+(\d{1,2})\s+de\s+(\p{L}+)\s+a\s+las?\s+(\d{1,2})(?::(\d{2}))?`)
)

var months = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// hasDateClause reports whether text holds a complete explicit date phrase
// with a known month. Such a phrase owns its clock time.
func hasDateClause(text string) bool {
	sm := reDate.FindStringSubmatch(text)
	if sm == nil {
		return false
	}
	_, ok := months[strings.ToLower(sm[2])]
	return ok
}

// Parse returns the instant described by text, evaluated against now.
// The result is always strictly after now and in now's location.
func Parse(text string, now time.Time) (time.Time, error) {
	m, err := Find(text, now)
	if err != nil {
		return time.Time{}, err
	}
	return m.At, nil
}

// Find locates the first supported time phrase in text. Patterns are tried
// in a fixed precedence order: relative minutes, relative hours, tomorrow at
// a clock time, bare clock time, explicit date.
func Find(text string, now time.Time) (Match, error) {
	if loc := reMinutes.FindStringSubmatchIndex(text); loc != nil {
		n, err := atoiRange(text[loc[2]:loc[3]], 1, 999999)
		if err != nil {
			return Match{}, &ParseError{Text: text, Err: err}
		}
		return Match{At: now.Add(time.Duration(n) * time.Minute), Start: loc[0], End: loc[1]}, nil
	}

	if loc := reHours.FindStringSubmatchIndex(text); loc != nil {
		n, err := atoiRange(text[loc[2]:loc[3]], 1, 9999)
		if err != nil {
			return Match{}, &ParseError{Text: text, Err: err}
		}
		return Match{At: now.Add(time.Duration(n) * time.Hour), Start: loc[0], End: loc[1]}, nil
	}

	if loc := reTomorrow.FindStringSubmatchIndex(text); loc != nil {
		hour, minute, err := clock(text, loc[2], loc[3], loc[4], loc[5])
		if err != nil {
			return Match{}, &ParseError{Text: text, Err: err}
		}
		at := time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
		return Match{At: at, Start: loc[0], End: loc[1]}, nil
	}

	if !hasDateClause(text) {
		if loc := reClock.FindStringSubmatchIndex(text); loc != nil {
			hour, minute, err := clock(text, loc[2], loc[3], loc[4], loc[5])
			if err != nil {
				return Match{}, &ParseError{Text: text, Err: err}
			}
			at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
			if !at.After(now) {
				at = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
			}
			return Match{At: at, Start: loc[0], End: loc[1]}, nil
		}
	}

	if loc := reDate.FindStringSubmatchIndex(text); loc != nil {
		day, err := atoiRange(text[loc[2]:loc[3]], 1, 31)
		if err != nil {
			return Match{}, &ParseError{Text: text, Err: err}
		}
		month, ok := months[strings.ToLower(text[loc[4]:loc[5]])]
		if !ok {
			return Match{}, &ParseError{Text: text, Err: fmt.Errorf("%w: unknown month %q", ErrInvalidTime, text[loc[4]:loc[5]])}
		}
		hour, minute, err := clock(text, loc[6], loc[7], loc[8], loc[9])
		if err != nil {
			return Match{}, &ParseError{Text: text, Err: err}
		}
		at, ok := nextDate(now, day, month, hour, minute)
		if !ok {
			return Match{}, &ParseError{Text: text, Err: fmt.Errorf("%w: %d de %s does not exist", ErrInvalidTime, day, text[loc[4]:loc[5]])}
		}
		return Match{At: at, Start: loc[0], End: loc[1]}, nil
	}

	return Match{}, &ParseError{Text: text, Err: ErrUnrecognized}
}

// nextDate returns the first occurrence of day/month at hour:minute that is
// strictly after now, starting with now's year. Feb 29 rolls to the next leap
// year; a date that exists in no year reports false.
func nextDate(now time.Time, day int, month time.Month, hour, minute int) (time.Time, bool) {
	for year := now.Year(); year <= now.Year()+8; year++ {
		t := time.Date(year, month, day, hour, minute, 0, 0, now.Location())
		if t.Day() != day || t.Month() != month {
			continue
		}
		if t.After(now) {
			return t, true
		}
	}
	return time.Time{}, false
}

// clock reads an hour group and an optional minutes group. A negative
// minutes offset means the group did not participate in the match.
func clock(text string, hs, he, ms, me int) (int, int, error) {
	hour, err := atoiRange(text[hs:he], 0, 23)
	if err != nil {
		return 0, 0, err
	}
	if ms < 0 {
		return hour, 0, nil
	}
	minute, err := atoiRange(text[ms:me], 0, 59)
	if err != nil {
		return 0, 0, err
	}
	return hour, minute, nil
}

func atoiRange(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidTime, s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d out of range [%d, %d]", ErrInvalidTime, n, lo, hi)
	}
	return n, nil
}
