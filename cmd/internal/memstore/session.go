package memstore

import (
	"context"
	"time"

	"userbase/cmd/identity"
)

func (s *Store) CreateSession(ctx context.Context, sess identity.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return identity.NotFoundError{Op: "session.CreateSession", Resource: "user"}
	}
	for _, other := range s.sessions {
		if other.RefreshTokenHash == sess.RefreshTokenHash {
			return identity.ConflictError{Op: "session.CreateSession", Field: "refresh_token"}
		}
	}
	sess.UserAgent = clonePtr(sess.UserAgent)
	sess.DeviceID = clonePtr(sess.DeviceID)
	sess.IP = cloneIP(sess.IP)
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) SessionByRefreshHash(ctx context.Context, hash string) (identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return identity.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == hash {
			return cloneSession(sess), nil
		}
	}
	return identity.Session{}, identity.NotFoundError{Op: "session.SessionByRefreshHash", Resource: "session"}
}

func (s *Store) SessionByID(ctx context.Context, id string) (identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return identity.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return identity.Session{}, identity.NotFoundError{Op: "session.SessionByID", Resource: "session"}
	}
	return cloneSession(sess), nil
}

func (s *Store) RevokeSession(ctx context.Context, now time.Time, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return identity.NotFoundError{Op: "session.RevokeSession", Resource: "session"}
	}
	if sess.RevokedAt == nil {
		revoke(&sess, now, reason)
		s.sessions[id] = sess
	}
	return nil
}

func (s *Store) RevokeUserSessions(ctx context.Context, now time.Time, userID, reason string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			revoke(&sess, now, reason)
			s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

func revoke(sess *identity.Session, now time.Time, reason string) {
	t := now
	r := reason
	sess.RevokedAt = &t
	sess.RevocationReason = &r
}

func cloneSession(sess identity.Session) identity.Session {
	sess.LastUsedAt = clonePtr(sess.LastUsedAt)
	sess.RevokedAt = clonePtr(sess.RevokedAt)
	sess.RevocationReason = clonePtr(sess.RevocationReason)
	sess.UserAgent = clonePtr(sess.UserAgent)
	sess.DeviceID = clonePtr(sess.DeviceID)
	sess.IP = cloneIP(sess.IP)
	return sess
}
