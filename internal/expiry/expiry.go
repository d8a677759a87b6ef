// Package expiry buckets a credential's expiry date relative to a reference day.
//
// Evaluate is a pure function of its three inputs: no clock reads, no I/O.
package expiry

import (
	"strings"
	"time"

	dErrors "compliancelab/pkg/domain-errors"
)

// DateLayout is the calendar date format accepted on the wire.
const DateLayout = "2006-01-02"

// Status buckets how close a credential is to expiring.
type Status string

const (
	StatusActive     Status = "active"
	StatusNearExpiry Status = "near_expiry"
	StatusExpired    Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusNearExpiry, StatusExpired:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Result is the outcome of Evaluate.
//
// Invariant: Status == StatusExpired iff DaysToExpiry < 0.
type Result struct {
	Status       Status
	DaysToExpiry int
}

// IsExpired reports whether the credential is past due.
func (r Result) IsExpired() bool {
	return r.Status == StatusExpired
}

// ParseDate parses a YYYY-MM-DD calendar date. A date that cannot be parsed is
// an invalid_input error; callers must not fall back to treating it as active.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "invalid_date: date is required")
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid_date: expected YYYY-MM-DD")
	}
	return t, nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const secondsPerDay = 24 * 60 * 60

// DaysBetween returns to - from in whole calendar days. It works on Unix
// seconds because time.Duration saturates at about 292 years.
func DaysBetween(from, to time.Time) int {
	return int((Day(to).Unix() - Day(from).Unix()) / secondsPerDay)
}

// Evaluate buckets expiryDate relative to today. The near-expiry window is
// inclusive on both ends; a negative window behaves as zero.
func Evaluate(expiryDate, today time.Time, windowDays int) Result {
	if windowDays < 0 {
		windowDays = 0
	}
	days := DaysBetween(today, expiryDate)

	switch {
	case days < 0:
		return Result{Status: StatusExpired, DaysToExpiry: days}
	case days <= windowDays:
		return Result{Status: StatusNearExpiry, DaysToExpiry: days}
	default:
		return Result{Status: StatusActive, DaysToExpiry: days}
	}
}
