// Package timeparse resolves the two time shapes users may type when setting
// a reminder: a bare clock time ("15:04") and a full date-time
// ("2006-01-02 15:04"). Everything else is a format error.
package timeparse

import (
	"fmt"
	"strings"
	"time"
)

const (
	clockLayout    = "15:04"
	dateTimeLayout = "2006-01-02 15:04"
)

// ParseError reports input that matches neither accepted shape.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid time format %q (want %q or %q)", e.Input, clockLayout, dateTimeLayout)
}

// Resolve turns input text into an absolute instant in loc.
//
// A bare clock time is anchored to now's calendar date in loc; if the result
// is not strictly after now it rolls forward one day, so "09:00" typed at
// 09:30 means tomorrow morning. A full date-time is taken literally with no
// rollover. The returned instant always carries loc.
func Resolve(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(input)

	switch len(s) {
	case len(clockLayout):
		clock, err := time.ParseInLocation(clockLayout, s, loc)
		if err != nil {
			return time.Time{}, &ParseError{Input: input}
		}
		ref := now.In(loc)
		at := time.Date(ref.Year(), ref.Month(), ref.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil

	case len(dateTimeLayout):
		at, err := time.ParseInLocation(dateTimeLayout, s, loc)
		if err != nil {
			return time.Time{}, &ParseError{Input: input}
		}
		return at, nil

	default:
		return time.Time{}, &ParseError{Input: input}
	}
}
