// Package merge collapses two accounts into one.
//
// Preview is a dry run. Execute requires a fresh signature over a merge
// challenge scoped to the source user and identity, then reassigns everything
// the source owns to the acting user in one store transaction. The challenge
// is consumed inside that transaction, so a failed merge leaves it usable.
package merge
