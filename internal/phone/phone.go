// Package phone normalizes and masks phone numbers.
package phone

import (
	"regexp"
	"strings"

	"github.com/yolla/server/internal/apperr"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// separators commonly typed by users and dropped before validation
var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Normalize strips separators and returns the number in E.164 form (+ followed by 8-15 digits).
// A leading "00" international prefix is rewritten to "+".
func Normalize(raw string) (string, error) {
	s := separators.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !e164.MatchString(s) {
		return "", apperr.New(apperr.KindValidation, "phone_number must be in E.164 format")
	}
	return s, nil
}

// Mask masks a phone number for logging (e.g., +9*********67)
func Mask(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}

	// Keep first 2 and last 2 characters, mask the rest
	prefix := phone[:2]
	suffix := phone[len(phone)-2:]
	masked := strings.Repeat("*", len(phone)-4)
	return prefix + masked + suffix
}
