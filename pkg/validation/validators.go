package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"
)

// Regex patterns
var (
	// Letters (any script), combining marks, space separators, hyphen,
	// apostrophe and period. Tabs and line breaks are not spaces.
	nameRegex = regexp.MustCompile(`^[\p{L}\p{M}\p{Zs}.'-]+$`)

	// Markup and script fragments that have no place in a contact message
	suspiciousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)<iframe`),
		regexp.MustCompile(`(?i)<object`),
		regexp.MustCompile(`(?i)<embed`),
	}
)

// DisposableDomains lists throwaway mailbox providers that are refused as
// sender addresses. Entries are lower-case ASCII.
var DisposableDomains = map[string]struct{}{
	"10minutemail.com":  {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"temp-mail.org":     {},
	"throwaway.email":   {},
	"yopmail.com":       {},
	"maildrop.cc":       {},
	"tempail.com":       {},
	"dispostable.com":   {},
}

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("portfolio_name", ValidName)
	_ = v.RegisterValidation("portfolio_email", ValidEmail)
	_ = v.RegisterValidation("not_disposable", NotDisposable)
}

// ValidName validates that a string contains only letters, spaces and the
// punctuation found in personal names.
func ValidName(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // Optional, use required if needed
	}
	return nameRegex.MatchString(val)
}

// ValidEmail validates the address shape used by the contact form.
func ValidEmail(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return IsEmail(val)
}

// NotDisposable rejects addresses hosted by a disposable mailbox provider.
func NotDisposable(fl validator.FieldLevel) bool {
	return !IsDisposable(fl.Field().String())
}

// IsEmail reports whether s has exactly one '@', a non-empty local part, and a
// domain with at least one '.' whose labels are non-empty and whose final
// label is at least two characters long. Whitespace is not allowed anywhere.
func IsEmail(s string) bool {
	if strings.Count(s, "@") != 1 || strings.ContainsAny(s, " \t\r\n\v\f") {
		return false
	}

	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" || !strings.Contains(domain, ".") {
		return false
	}

	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	return utf8.RuneCountInString(labels[len(labels)-1]) >= 2
}

// IsDisposable reports whether the domain of email is on the disposable list.
// Domains are compared on their lower-case ASCII (punycode) form.
func IsDisposable(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	_, blocked := DisposableDomains[CanonicalDomain(email[at+1:])]
	return blocked
}

// CanonicalDomain returns the lower-case ASCII form of an email domain. When
// the domain cannot be converted it is lower-cased as is.
func CanonicalDomain(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		return strings.ToLower(ascii)
	}
	return strings.ToLower(domain)
}

// ContainsSuspicious reports whether any of the values contains a markup or
// script injection pattern.
func ContainsSuspicious(values ...string) bool {
	combined := strings.Join(values, " ")
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(combined) {
			return true
		}
	}
	return false
}
