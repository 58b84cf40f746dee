package utils

import (
	"regexp"
	"strings"
)

var nonDigit = regexp.MustCompile(`\D`)

// CanonicalPhone normalizes a North American phone number to +1XXXXXXXXXX.
// Accepts 10-digit numbers and 11-digit numbers with a leading 1. Any other
// digit count has no canonical form and yields "".
func CanonicalPhone(raw string) string {
	digits := nonDigit.ReplaceAllString(raw, "")

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	default:
		return ""
	}
}

// ValidateE164 validates E.164 phone number format
func ValidateE164(phone string) bool {
	re := regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	return re.MatchString(phone)
}

// MaskPhoneNumber masks a phone number for logging
// Example: +14155551234 -> +1415•••••1234
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	phone = strings.TrimSpace(phone)

	re := regexp.MustCompile(`^(\+)(\d{1,3})(\d{3})(\d+)$`)
	matches := re.FindStringSubmatch(phone)

	if len(matches) == 5 {
		countryCode := matches[2]
		first3 := matches[3]
		lastDigits := matches[4]

		if len(lastDigits) >= 4 {
			last4 := lastDigits[len(lastDigits)-4:]
			masked := strings.Repeat("•", len(lastDigits)-4)
			return "+" + countryCode + first3 + masked + last4
		}
	}

	if len(phone) > 4 {
		masked := strings.Repeat("•", len(phone)-4)
		return masked + phone[len(phone)-4:]
	}

	return strings.Repeat("•", len(phone))
}
