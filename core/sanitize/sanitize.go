// Package sanitize normalizes user supplied text before it is stored.
//
// Text fields go through Text: markup is stripped, the result is NFC
// normalized, whitespace runs collapse to a single space, and the value is
// truncated to a rune limit. This keeps injected markup out of the store; it
// is not an HTML sanitizer for rendering untrusted HTML.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 20
	EmailMaxLen    = 120
	PasswordMinLen = 6
	PasswordMaxLen = 64
)

var (
	stripper = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

	whitespaceRe = regexp.MustCompile(`\s+`)
	usernameRe   = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
	emailRe      = regexp.MustCompile("^[\\w.!#$%&'*+/=?^`{|}~-]+@[\\w-]+(?:\\.[\\w-]+)+$")
	newlineRe    = regexp.MustCompile(`\r\n?`)
)

// Text strips tags, collapses whitespace, trims and truncates s to max runes.
// A max of zero or less disables truncation.
func Text(s string, max int) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(stripper.Sanitize(s))
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return Truncate(s, max)
}

// Multiline normalizes line endings and trims s without touching inner
// whitespace, then truncates to max runes. Used for comments.
func Multiline(s string, max int) string {
	s = newlineRe.ReplaceAllString(s, "\n")
	s = norm.NFC.String(s)
	s = strings.TrimSpace(s)
	return Truncate(s, max)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}

// Username drops characters outside [A-Za-z0-9_.-] and truncates.
func Username(s string) string {
	s = usernameRe.ReplaceAllString(strings.TrimSpace(s), "")
	return Truncate(s, UsernameMaxLen)
}

// Email trims, lowercases and truncates.
func Email(s string) string {
	return Truncate(strings.ToLower(strings.TrimSpace(s)), EmailMaxLen)
}

// ValidUsername reports whether a sanitized username is long enough.
func ValidUsername(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= UsernameMinLen && n <= UsernameMaxLen
}

// ValidEmail checks the structural shape of an address.
func ValidEmail(s string) bool {
	return s != "" && emailRe.MatchString(s)
}

// ValidPassword checks the password length bounds.
func ValidPassword(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= PasswordMinLen && n <= PasswordMaxLen
}

// OneOf returns value when it is in allowed, def when value is empty, and
// false otherwise.
func OneOf(value, def string, allowed ...string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, def != ""
	}
	for _, a := range allowed {
		if value == a {
			return value, true
		}
	}
	return "", false
}

// Filter is OneOf for listing filters, where an empty value means no filter.
func Filter(value string, allowed ...string) (string, bool) {
	if strings.TrimSpace(value) == "" {
		return "", true
	}
	return OneOf(value, "", allowed...)
}
