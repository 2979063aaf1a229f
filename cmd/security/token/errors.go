package token

import "errors"

// ErrHMACKeyTooShort is returned for a configured HMAC key below MinHMACKeyBytes.
var ErrHMACKeyTooShort = errors.New("token HMAC key too short")
