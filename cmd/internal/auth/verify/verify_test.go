package verify

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"

	"userbase/cmd/identity"
	"userbase/cmd/internal/hive"
)

type fakeAccounts map[string][]string

func (f fakeAccounts) PostingKeys(_ context.Context, name string) ([]string, error) {
	keys, ok := f[name]
	if !ok {
		return nil, hive.ErrAccountNotFound
	}
	return keys, nil
}

type downAccounts struct{}

func (downAccounts) PostingKeys(context.Context, string) ([]string, error) {
	return nil, hive.ErrUnavailable
}

func mustKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	k, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	return k
}

func TestHive_VerifiesAuthorizedPostingKey(t *testing.T) {
	posting := mustKey(t)
	pubStr := hive.EncodePublicKey(posting.PubKey(), "")
	v := NewHive(fakeAccounts{"alice": {pubStr}})

	const msg = "sign me"
	res, err := v.Verify(context.Background(), Proof{
		Identifier: "alice",
		Message:    msg,
		Signature:  hive.Sign(posting, msg),
		PublicKey:  pubStr,
	})
	require.NoError(t, err)
	require.Equal(t, pubStr, res.Metadata["public_key"])
	require.Equal(t, TierCryptographic, v.Tier())
}

func TestHive_ValidSignatureButKeyNotOnChain(t *testing.T) {
	posting := mustKey(t)
	rogue := mustKey(t)
	v := NewHive(fakeAccounts{"alice": {hive.EncodePublicKey(posting.PubKey(), "")}})

	const msg = "sign me"
	_, err := v.Verify(context.Background(), Proof{
		Identifier: "alice",
		Message:    msg,
		Signature:  hive.Sign(rogue, msg),
		PublicKey:  hive.EncodePublicKey(rogue.PubKey(), ""),
	})
	require.ErrorIs(t, err, ErrKeyNotAuthorized)
	require.ErrorIs(t, err, identity.ErrForbidden)
}

func TestHive_SignatureDoesNotMatchClaimedKey(t *testing.T) {
	posting := mustKey(t)
	rogue := mustKey(t)
	pubStr := hive.EncodePublicKey(posting.PubKey(), "")
	v := NewHive(fakeAccounts{"alice": {pubStr}})

	_, err := v.Verify(context.Background(), Proof{
		Identifier: "alice",
		Message:    "sign me",
		Signature:  hive.Sign(rogue, "sign me"),
		PublicKey:  pubStr,
	})
	require.ErrorIs(t, err, ErrSignatureMismatch)

	var ve *VerificationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, identity.TypeHive, ve.Type)
}

func TestHive_Failures(t *testing.T) {
	posting := mustKey(t)
	pubStr := hive.EncodePublicKey(posting.PubKey(), "")
	sig := hive.Sign(posting, "m")

	_, err := NewHive(fakeAccounts{}).Verify(context.Background(), Proof{Identifier: "ghost", Message: "m", Signature: sig, PublicKey: pubStr})
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = NewHive(downAccounts{}).Verify(context.Background(), Proof{Identifier: "alice", Message: "m", Signature: sig, PublicKey: pubStr})
	require.ErrorIs(t, err, ErrChainUnavailable)
	require.ErrorIs(t, err, identity.ErrDependency)

	_, err = NewHive(fakeAccounts{}).Verify(context.Background(), Proof{Identifier: "alice", Message: "m", Signature: "nothex", PublicKey: pubStr})
	require.ErrorIs(t, err, ErrMalformedSignature)

	_, err = NewHive(fakeAccounts{}).Verify(context.Background(), Proof{Identifier: "alice", Message: "m", Signature: sig})
	require.ErrorIs(t, err, ErrMalformedPublicKey)
	require.ErrorIs(t, err, identity.ErrInvalidInput)
}

// signPersonal signs like an Ethereum wallet: r||s||v with v in {27, 28}.
func signPersonal(t *testing.T, priv *secp256k1.PrivateKey, msg string) string {
	t.Helper()
	compact := ecdsa.SignCompact(priv, PersonalSignHash(msg), false)
	eth := append(append([]byte{}, compact[1:]...), compact[0])
	return "0x" + hex.EncodeToString(eth)
}

func TestEVM_RecoversClaimedAddress(t *testing.T) {
	priv := mustKey(t)
	addr := AddressOf(priv.PubKey())
	const msg = "Userbase wants you to sign in"

	sig := signPersonal(t, priv, msg)
	res, err := NewEVM().Verify(context.Background(), Proof{Identifier: addr, Message: msg, Signature: sig})
	require.NoError(t, err)
	require.Equal(t, identity.ChecksumAddress(addr), res.Metadata["checksum_address"])

	// v in {0, 1} is accepted too.
	raw, err := hex.DecodeString(sig[2:])
	require.NoError(t, err)
	raw[64] -= 27
	got, err := RecoverAddress(msg, hex.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestEVM_Mismatch(t *testing.T) {
	priv := mustKey(t)
	other := mustKey(t)

	_, err := NewEVM().Verify(context.Background(), Proof{
		Identifier: AddressOf(other.PubKey()),
		Message:    "m",
		Signature:  signPersonal(t, priv, "m"),
	})
	require.ErrorIs(t, err, ErrSignatureMismatch)

	// Signature over a different message recovers a different address.
	_, err = NewEVM().Verify(context.Background(), Proof{
		Identifier: AddressOf(priv.PubKey()),
		Message:    "m2",
		Signature:  signPersonal(t, priv, "m"),
	})
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestEVM_Malformed(t *testing.T) {
	_, err := NewEVM().Verify(context.Background(), Proof{Identifier: "0x00", Message: "m", Signature: "0x1234"})
	require.ErrorIs(t, err, ErrMalformedSignature)

	bad := make([]byte, 65)
	bad[64] = 5
	_, err = RecoverAddress("m", hex.EncodeToString(bad))
	require.Error(t, err)
}

func TestFarcaster_SelfReported(t *testing.T) {
	v := NewFarcaster()
	require.Equal(t, TierSelfReported, v.Tier())

	res, err := v.Verify(context.Background(), Proof{Identifier: "1234"})
	require.NoError(t, err)
	require.Equal(t, "self_reported", res.Metadata["trust"])

	_, err = v.Verify(context.Background(), Proof{Identifier: "abc"})
	require.ErrorIs(t, err, identity.ErrInvalidInput)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewEVM(), NewFarcaster())

	v, err := r.For(identity.TypeEVM)
	require.NoError(t, err)
	require.Equal(t, identity.TypeEVM, v.Type())

	_, err = r.For(identity.TypeHive)
	require.ErrorIs(t, err, ErrUnsupportedType)
}
