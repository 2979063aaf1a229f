// Package memstore is an in-memory implementation of every userbase store
// interface. It backs USERBASE_STORE=memory (local development) and the unit
// tests of the service packages.
//
// All state sits behind one mutex, so each method is atomic. That makes
// CreateAccount and MergeUsers all-or-nothing the same way a database
// transaction does for the Postgres stores.
package memstore

import (
	"maps"
	"net"
	"sync"
	"time"

	"userbase/cmd/identity"
	"userbase/cmd/internal/audit"
)

// Store holds users, identities, auth methods, challenges, sessions,
// magic-link tokens, soft content and audit entries.
type Store struct {
	mu sync.Mutex

	users       map[string]identity.User
	identities  map[string]identity.Identity
	authMethods map[string]identity.AuthMethod
	challenges  map[string]identity.Challenge
	sessions    map[string]identity.Session
	magicLinks  map[string]identity.MagicLinkToken

	// soft content: record id -> owning user id
	posts map[string]string
	votes map[string]string

	audit []audit.Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:       make(map[string]identity.User),
		identities:  make(map[string]identity.Identity),
		authMethods: make(map[string]identity.AuthMethod),
		challenges:  make(map[string]identity.Challenge),
		sessions:    make(map[string]identity.Session),
		magicLinks:  make(map[string]identity.MagicLinkToken),
		posts:       make(map[string]string),
		votes:       make(map[string]string),
	}
}

// AddPost records a soft post owned by userID and returns its id.
func (s *Store) AddPost(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mustULID()
	s.posts[id] = userID
	return id
}

// AddVote records a soft vote owned by userID and returns its id.
func (s *Store) AddVote(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := mustULID()
	s.votes[id] = userID
	return id
}

// PostOwner returns the owner of a soft post.
func (s *Store) PostOwner(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[id]
}

// SessionRecords returns a snapshot of every stored session row.
func (s *Store) SessionRecords() []identity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// ChallengeRecord returns a stored challenge by id.
func (s *Store) ChallengeRecord(id string) (identity.Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	return c, ok
}

func mustULID() string {
	id, err := identity.NewULID(time.Now().UTC())
	if err != nil {
		panic(err)
	}
	return id
}

func cloneIdentity(i identity.Identity) identity.Identity {
	i.Metadata = maps.Clone(i.Metadata)
	if i.Metadata == nil {
		i.Metadata = map[string]any{}
	}
	return i
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIP(ip *net.IP) *net.IP {
	if ip == nil {
		return nil
	}
	c := append(net.IP(nil), (*ip)...)
	return &c
}

func cloneUser(u identity.User) identity.User {
	u.Handle = clonePtr(u.Handle)
	u.DisplayName = clonePtr(u.DisplayName)
	u.AvatarURL = clonePtr(u.AvatarURL)
	u.MergedIntoUserID = clonePtr(u.MergedIntoUserID)
	return u
}
