package mail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSMTP_RequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTP(Config{Host: "smtp.example.com"}, nil)
	require.Error(t, err)

	m, err := NewSMTP(Config{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}, nil)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestSend_HonorsContext(t *testing.T) {
	// 192.0.2.0/24 is TEST-NET-1; the dial hangs or fails, never succeeds.
	m, err := NewSMTP(Config{Host: "192.0.2.1", Port: 25, From: "noreply@example.com"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Send(ctx, "a@example.com", "hi", "<p>hi</p>")
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestLogMailer(t *testing.T) {
	require.NoError(t, LogMailer{}.Send(context.Background(), "a@example.com", "s", "b"))
}
