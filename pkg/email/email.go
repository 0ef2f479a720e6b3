// Package email derives presentable fields from an email address when the
// identity provider omits them from the assertion.
package email

import (
	"strings"
	"unicode"
)

// LocalPart returns everything before the '@', or the whole input when no
// '@' is present.
func LocalPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// DeriveNameFromEmail splits the local part on common separators and produces
// a first/last name pair. Used only when the assertion carries no name.
func DeriveNameFromEmail(email string) (string, string) {
	parts := strings.FieldsFunc(LocalPart(email), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
