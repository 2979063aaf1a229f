package identity

import (
	"encoding/hex"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
)

var (
	hiveSegmentRe = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)
	evmAddressRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateEmail normalizes and validates an email address.
func ValidateEmail(raw string) (string, error) {
	e := NormalizeEmail(raw)
	if e == "" || len(e) > 254 {
		return "", OpError{Op: "identity.ValidateEmail", Kind: ErrInvalidInput, Msg: "invalid email"}
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e || addr.Name != "" {
		return "", OpError{Op: "identity.ValidateEmail", Kind: ErrInvalidInput, Msg: "invalid email"}
	}
	return e, nil
}

// NormalizeHiveHandle lowercases and validates a Hive account name:
// 3-16 chars, dot-separated segments of at least 3 chars, each starting with a
// letter and ending with a letter or digit. A leading "@" is accepted.
func NormalizeHiveHandle(raw string) (string, error) {
	const op = "identity.NormalizeHiveHandle"

	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "@")
	if len(h) < 3 || len(h) > 16 {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "hive handle must be 3-16 characters"}
	}
	for _, seg := range strings.Split(h, ".") {
		if len(seg) < 3 || !hiveSegmentRe.MatchString(seg) {
			return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid hive handle"}
		}
	}
	return h, nil
}

// NormalizeEVMAddress validates a 0x-prefixed 20-byte address and returns it lowercased.
// Mixed-case input must carry a valid EIP-55 checksum.
func NormalizeEVMAddress(raw string) (string, error) {
	const op = "identity.NormalizeEVMAddress"

	a := strings.TrimSpace(raw)
	if strings.HasPrefix(a, "0X") {
		a = "0x" + a[2:]
	}
	if !evmAddressRe.MatchString(a) {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid evm address"}
	}
	body := a[2:]
	lower := strings.ToLower(body)
	if body != lower && body != strings.ToUpper(body) {
		if ChecksumAddress(lower) != a {
			return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "evm address checksum mismatch"}
		}
	}
	if _, err := hex.DecodeString(lower); err != nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid evm address"}
	}
	return "0x" + lower, nil
}

// NormalizeFID validates a Farcaster id: a positive decimal integer.
func NormalizeFID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return "", OpError{Op: "identity.NormalizeFID", Kind: ErrInvalidInput, Msg: "fid must be a positive integer"}
	}
	return strconv.FormatInt(n, 10), nil
}

// NormalizeIdentifier dispatches to the per-type normalizer.
func NormalizeIdentifier(t IdentityType, raw string) (string, error) {
	switch t {
	case TypeHive:
		return NormalizeHiveHandle(raw)
	case TypeEVM:
		return NormalizeEVMAddress(raw)
	case TypeFarcaster:
		return NormalizeFID(raw)
	default:
		return "", OpError{Op: "identity.NormalizeIdentifier", Kind: ErrInvalidInput, Msg: "unsupported identity type"}
	}
}

// Label renders an identity for humans, e.g. in challenge messages.
func Label(t IdentityType, identifier string) string {
	switch t {
	case TypeHive:
		return "Hive account @" + identifier
	case TypeEVM:
		return "Ethereum address " + identifier
	case TypeFarcaster:
		return "Farcaster fid " + identifier
	default:
		return string(t) + " " + identifier
	}
}
