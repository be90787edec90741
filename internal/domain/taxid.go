package domain

import "strings"

// NormalizeTaxID brings a taxpayer id to the form used as the counteragent dictionary key.
// A 10-digit numeric id is left-padded with one zero to 11 digits; any other form is
// returned trimmed but otherwise unchanged.
func NormalizeTaxID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) == 10 && isDigits(id) {
		return "0" + id
	}
	return id
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
