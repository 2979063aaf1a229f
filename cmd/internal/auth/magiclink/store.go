package magiclink

import (
	"context"
	"time"

	"userbase/cmd/identity"
)

// Store is the persistence boundary for magic-link tokens.
type Store interface {
	InsertMagicLink(ctx context.Context, t identity.MagicLinkToken) error

	// ConsumeMagicLink atomically marks an unconsumed, unexpired token as
	// consumed and returns it. Anything else is a NotFoundError.
	ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (identity.MagicLinkToken, error)
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}
