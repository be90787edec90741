package domain

import (
	"fmt"
	"strings"
	"time"
)

// Date layouts accepted for value dates and ledger filters.
const (
	DateLayoutISO = "2006-01-02"
	DateLayoutDot = "02.01.2006"
)

var valueDateLayouts = []string{
	DateLayoutISO,
	DateLayoutDot,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
}

// ParseDate parses a date written year-first (2024-03-31) or day-first with dots
// (31.03.2024), with an optional time part, and truncates it to a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidValueDate)
	}

	for _, layout := range valueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidValueDate, s)
}

// DateKey returns the canonical key used to index per-day tables.
func DateKey(t time.Time) string {
	return t.Format(DateLayoutISO)
}
