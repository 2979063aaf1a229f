package challenge

import (
	"fmt"
	"strings"
	"time"

	"userbase/cmd/identity"
)

// RenderMessage builds the human-readable text a wallet signs. It embeds the
// purpose, subject account, identity label, nonce and validity window so a
// signature cannot be replayed against a different scope.
func RenderMessage(app string, scope identity.ChallengeScope, nonce string, issuedAt, expiresAt time.Time) string {
	subject := "new account"
	if scope.UserID != nil {
		subject = *scope.UserID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to %s %s.\n", app, verb(scope.Purpose), identity.Label(scope.Type, scope.Identifier))
	fmt.Fprintf(&b, "Purpose: %s\n", scope.Purpose)
	fmt.Fprintf(&b, "User: %s\n", subject)
	fmt.Fprintf(&b, "Nonce: %s\n", nonce)
	fmt.Fprintf(&b, "Issued At: %s\n", issuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Expires At: %s", expiresAt.UTC().Format(time.RFC3339))
	return b.String()
}

func verb(p identity.ChallengePurpose) string {
	switch p {
	case identity.PurposeLogin:
		return "sign in with"
	case identity.PurposeLink:
		return "link"
	case identity.PurposeMerge:
		return "merge the account that owns"
	default:
		return "verify"
	}
}
