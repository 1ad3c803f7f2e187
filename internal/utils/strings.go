package utils

import (
	"strings"
	"unicode"
)

// NormalizeName trims and collapses internal runs of whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail lowercases and trims.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps digits and a leading +.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			result.WriteRune(r)
		} else if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeRegisterNumber uppercases student register numbers and drops spaces.
func NormalizeRegisterNumber(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func IsValidEmail(email string) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" || strings.ContainsAny(normalized, " \t") {
		return false
	}

	local, domain, ok := strings.Cut(normalized, "@")
	if !ok || strings.Contains(domain, "@") {
		return false
	}
	return len(local) > 0 && len(domain) > 2 && strings.Contains(domain, ".") &&
		!strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func IsValidPhone(phone string) bool {
	normalized := NormalizePhone(phone)
	digits := strings.TrimPrefix(normalized, "+")
	return len(digits) >= 7 && len(digits) <= 15
}
