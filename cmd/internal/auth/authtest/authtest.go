// Package authtest holds fixtures shared by the auth packages' tests:
// signing keys, a fake Hive account source and services over memstore.
package authtest

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"userbase/cmd/identity"
	"userbase/cmd/internal/auth/challenge"
	"userbase/cmd/internal/auth/session"
	"userbase/cmd/internal/auth/verify"
	"userbase/cmd/internal/hive"
	"userbase/cmd/internal/memstore"
	"userbase/cmd/security/token"
)

// Accounts maps Hive account names to posting public keys.
type Accounts map[string][]string

func (a Accounts) PostingKeys(_ context.Context, name string) ([]string, error) {
	keys, ok := a[name]
	if !ok {
		return nil, hive.ErrAccountNotFound
	}
	return keys, nil
}

// Key is a secp256k1 key usable for both Hive and EVM fixtures.
type Key struct {
	Priv *secp256k1.PrivateKey
}

func NewKey(t testing.TB) Key {
	t.Helper()
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Key{Priv: k}
}

// HivePublic is the STM-encoded public key.
func (k Key) HivePublic() string { return hive.EncodePublicKey(k.Priv.PubKey(), "") }

// HiveSign signs msg like Hive Keychain does.
func (k Key) HiveSign(msg string) string { return hive.Sign(k.Priv, msg) }

// Address is the lowercase EVM address of the key.
func (k Key) Address() string { return verify.AddressOf(k.Priv.PubKey()) }

// EVMSign signs msg like an Ethereum wallet's personal_sign: r||s||v.
func (k Key) EVMSign(msg string) string {
	compact := ecdsa.SignCompact(k.Priv, verify.PersonalSignHash(msg), false)
	eth := append(append([]byte{}, compact[1:]...), compact[0])
	return "0x" + hex.EncodeToString(eth)
}

// Registry returns verifiers for all identity types backed by accounts.
func Registry(accounts Accounts) *verify.Registry {
	return verify.NewRegistry(verify.NewHive(accounts), verify.NewEVM(), verify.NewFarcaster())
}

// Sessions returns a session service with a throwaway signing key.
func Sessions(t testing.TB, st session.Store) *session.Service {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	mgr, err := session.NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("paseto manager: %v", err)
	}
	return session.NewService(cfg, st, mgr, token.Hasher{})
}

// Challenges returns a challenge service with default config.
func Challenges(t testing.TB, st challenge.Store) *challenge.Service {
	t.Helper()
	svc, err := challenge.NewService(challenge.DefaultConfig(), st)
	if err != nil {
		t.Fatalf("challenge service: %v", err)
	}
	return svc
}

// HiveUser creates an account owning the given Hive handle.
func HiveUser(t testing.TB, st *memstore.Store, handle string) identity.User {
	t.Helper()
	res, err := st.CreateAccount(context.Background(), identity.CreateAccountInput{
		Handle:   handle,
		Identity: &identity.NewIdentity{Type: identity.TypeHive, Identifier: handle},
	})
	if err != nil {
		t.Fatalf("create account %q: %v", handle, err)
	}
	return res.User
}

// Alert is one recorded alert.
type Alert struct {
	Event  string
	Fields map[string]any
}

// Alerts records alerts in memory.
type Alerts struct {
	mu     sync.Mutex
	events []Alert
}

func (a *Alerts) Alert(_ context.Context, event string, fields map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, Alert{Event: event, Fields: fields})
}

// Events returns the recorded event names in order.
func (a *Alerts) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Event)
	}
	return out
}
