package usecase

import (
	"regexp"
	"strings"
)

// paymentIDStrategies are tried in order against the free-text note; the first match
// wins. The order is significant for downstream matching.
var paymentIDStrategies = []*regexp.Regexp{
	regexp.MustCompile(`(?i)payment_id\s*:\s*([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`(?i)^id\s*:\s*([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`[#№]\s*([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`([A-Za-z0-9]{2}_[A-Za-z0-9]{6}_[A-Za-z0-9]{2}_[A-Za-z0-9]{6}_(?i:PRL)[0-9]{6})`),
	regexp.MustCompile(`^([A-Za-z0-9_-]{5,50})$`),
}

// ExtractPaymentID returns the candidate payment id found in a free-text note.
func ExtractPaymentID(note string) (string, bool) {
	note = strings.TrimSpace(note)
	if note == "" {
		return "", false
	}

	for _, re := range paymentIDStrategies {
		if m := re.FindStringSubmatch(note); m != nil {
			return m[1], true
		}
	}

	return "", false
}
