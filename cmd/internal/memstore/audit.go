package memstore

import (
	"context"
	"maps"
	"net"
	"time"

	"userbase/cmd/internal/audit"
)

// Record appends an audit entry.
func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	e.IP = append(net.IP(nil), e.IP...)
	e.Meta = maps.Clone(e.Meta)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// CountByIP counts entries with action from ip at or after since.
func (s *Store) CountByIP(ctx context.Context, action string, ip net.IP, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if ip == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.audit {
		if e.Action == action && e.IP.Equal(ip) && !e.At.Before(since) {
			n++
		}
	}
	return n, nil
}

// AuditActions returns the recorded actions in order.
func (s *Store) AuditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, e.Action)
	}
	return out
}
