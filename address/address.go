package address

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// ErrInvalidDomain is an exported constant or variable used by the email authentication engine.
var ErrInvalidDomain = errors.New("invalid domain name")

// ErrInvalidEmail is an exported constant or variable used by the email authentication engine.
var ErrInvalidEmail = errors.New("invalid email address")

var domainPattern = regexp.MustCompile(`^([A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,6}$`)

// IsValidDomain describes the isvaliddomain operation and its observable behavior.
//
// IsValidDomain does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func IsValidDomain(domain string) bool {
	return domainPattern.MatchString(domain)
}

// NormalizeDomain lowercases a domain name after validating it against the
// domain grammar. Normalization is idempotent: applying it twice yields the
// same result as applying it once.
func NormalizeDomain(domain string) (string, error) {
	if !IsValidDomain(domain) {
		return "", ErrInvalidDomain
	}
	return strings.ToLower(domain), nil
}

// NormalizeDomains normalizes every entry of a domain list, de-duplicating
// case-insensitively while preserving first-seen order. Any invalid entry
// fails the whole list.
func NormalizeDomains(domains []string) ([]string, error) {
	if len(domains) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))

	for _, d := range domains {
		normalized, err := NormalizeDomain(strings.TrimSpace(d))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	return out, nil
}

// IsValidEmail describes the isvalidemail operation and its observable behavior.
//
// IsValidEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func IsValidEmail(email string) bool {
	_, err := NormalizeEmail(email)
	return err == nil
}

// NormalizeEmail validates an address and lowercases both its local part and
// domain. Display-name forms ("Name <a@b.com>") are rejected: the input must
// be the bare address.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", ErrInvalidEmail
	}

	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Address != trimmed {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndexByte(trimmed, '@')
	if at <= 0 {
		return "", ErrInvalidEmail
	}
	if !IsValidDomain(trimmed[at+1:]) {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(trimmed), nil
}

// LocalPart returns the part of the address before the last '@'. The input is
// assumed to have passed NormalizeEmail.
func LocalPart(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at]
}

// DomainOf returns the part of the address after the last '@'. The input is
// assumed to have passed NormalizeEmail.
func DomainOf(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
