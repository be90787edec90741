package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var salaryPeriodSuffix = regexp.MustCompile(`(?i)_PRL(\d{2})(\d{4})$`)

// SalaryPeriod is the month/year suffix of a salary accrual id.
type SalaryPeriod struct {
	Month int
	Year  int
}

// Valid reports whether the period is a real month in the supported range.
func (p SalaryPeriod) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2000 && p.Year <= 2100
}

// After reports whether p is later than o.
func (p SalaryPeriod) After(o SalaryPeriod) bool {
	if p.Year != o.Year {
		return p.Year > o.Year
	}
	return p.Month > o.Month
}

// Next returns the following month.
func (p SalaryPeriod) Next() SalaryPeriod {
	if p.Month >= 12 {
		return SalaryPeriod{Month: 1, Year: p.Year + 1}
	}
	return SalaryPeriod{Month: p.Month + 1, Year: p.Year}
}

// Suffix renders the period as it appears in an accrual id.
func (p SalaryPeriod) Suffix() string {
	return fmt.Sprintf("PRL%02d%04d", p.Month, p.Year)
}

// ParseSalaryPeriod extracts the _PRL<MM><YYYY> suffix of id. found is false when the id
// has no such suffix; the returned period may still be invalid (e.g. month 13).
func ParseSalaryPeriod(id string) (period SalaryPeriod, found bool) {
	m := salaryPeriodSuffix.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return SalaryPeriod{}, false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	return SalaryPeriod{Month: month, Year: year}, true
}

// SalaryBasePrefix returns the first SalaryBaseKeyLength characters of a trimmed salary
// accrual id, or "" when the id is shorter.
func SalaryBasePrefix(id string) string {
	runes := []rune(strings.TrimSpace(id))
	if len(runes) < SalaryBaseKeyLength {
		return ""
	}
	return string(runes[:SalaryBaseKeyLength])
}

// SalaryBaseKey returns the lower-cased SalaryBasePrefix of a salary accrual id.
func SalaryBaseKey(id string) string {
	return strings.ToLower(SalaryBasePrefix(id))
}
