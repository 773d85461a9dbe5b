package domain

import "strings"

// ValidateEmail applies the email gate rule: non-empty, containing both "@" and ".".
func ValidateEmail(candidate string) error {
	candidate = strings.TrimSpace(candidate)
	switch {
	case candidate == "":
		return NewError(KindValidation, "validate email", "Please enter your email address.", nil)
	case !strings.Contains(candidate, "@") || !strings.Contains(candidate, "."):
		return NewError(KindValidation, "validate email", "Please enter a valid email address.", nil)
	}
	return nil
}
