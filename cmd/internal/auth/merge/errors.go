package merge

import "userbase/cmd/identity"

var (
	// ErrSameUser rejects merging an identity the actor already owns.
	ErrSameUser = identity.NewCoded(identity.ErrConflict, "merge_same_user")

	// ErrSelfReportedMerge rejects merges authorized by a self-reported identity.
	ErrSelfReportedMerge = identity.NewCoded(identity.ErrForbidden, "self_reported_merge_denied")
)
