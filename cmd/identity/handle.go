package identity

import (
	"regexp"
	"strings"
)

const (
	HandleMinLen = 3
	HandleMaxLen = 32

	// handleBaseMaxLen leaves room for a "-xxxx" collision suffix.
	handleBaseMaxLen = HandleMaxLen - 5
)

var (
	handleRe       = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
	handleInvalidR = regexp.MustCompile(`[^a-z0-9]+`)
)

// ValidHandle reports whether h is an acceptable application handle.
func ValidHandle(h string) bool {
	return len(h) >= HandleMinLen && len(h) <= HandleMaxLen && handleRe.MatchString(h)
}

// SlugifyHandle turns an arbitrary base string into a handle candidate.
// It lowercases, collapses runs of other characters into "-", trims dashes and
// truncates. Bases that end up too short are padded from "user".
func SlugifyHandle(base string) string {
	s := strings.ToLower(strings.TrimSpace(base))
	s = handleInvalidR.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > handleBaseMaxLen {
		s = strings.Trim(s[:handleBaseMaxLen], "-")
	}
	switch {
	case s == "":
		return "user"
	case len(s) < HandleMinLen:
		return "user-" + s
	}
	return s
}

// HandleBase picks the slug base for a new account's handle from what the
// caller knows: an explicit hint first, then the credential itself.
func HandleBase(hint string, t IdentityType, identifier string) string {
	if strings.TrimSpace(hint) != "" {
		return hint
	}
	switch t {
	case TypeHive:
		return identifier
	case TypeEVM:
		id := strings.TrimPrefix(identifier, "0x")
		if len(id) > 6 {
			id = id[:6]
		}
		return "wallet-" + id
	case TypeFarcaster:
		return "fc-" + identifier
	}
	if at := strings.IndexByte(identifier, '@'); at > 0 {
		return identifier[:at]
	}
	return identifier
}
