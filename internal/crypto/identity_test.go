package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func randSeed(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv.Seed()
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := NewSigningFromSeed(randSeed(t))
	require.NoError(t, err)

	msg := []byte("provisioning-request-42")
	sig, err := id.Sign(msg)
	require.NoError(t, err)
	require.Len(t, sig, SignatureSize)

	verifier, err := NewVerifyingFromBytes(id.Public)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	id, err := NewSigningFromSeed(randSeed(t))
	require.NoError(t, err)

	sig, err := id.Sign([]byte("original"))
	require.NoError(t, err)

	err = id.Verify([]byte("tampered"), sig)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestSignatureDoesNotCrossDomains(t *testing.T) {
	// Ed25519ctx signatures bound to DomainContext must not verify as plain
	// Ed25519 or under a different context string, and a corrupted signature
	// must not verify either.
	id, err := NewSigningFromSeed(randSeed(t))
	require.NoError(t, err)
	sig, err := id.Sign([]byte("msg"))
	require.NoError(t, err)
	require.False(t, ed25519.Verify(id.Public, []byte("msg"), sig))
	require.Error(t, ed25519.VerifyWithOptions(id.Public, []byte("msg"), sig, &ed25519.Options{Context: "other-domain"}))
	sig[0] ^= 0xFF
	require.Error(t, id.Verify([]byte("msg"), sig))
}

func TestNewVerifyingFromBytesBadLength(t *testing.T) {
	_, err := NewVerifyingFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrBadKeyLength)
}

func TestToPrincipalDeterministic(t *testing.T) {
	id, err := NewSigningFromSeed(randSeed(t))
	require.NoError(t, err)

	p1, err := id.ToPrincipal()
	require.NoError(t, err)
	p2, err := id.ToPrincipal()
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, byte(principalTagID), p1[28])
}

func TestPrincipalRoundTripsThroughString(t *testing.T) {
	id, err := NewSigningFromSeed(randSeed(t))
	require.NoError(t, err)
	p, err := id.ToPrincipal()
	require.NoError(t, err)

	parsed, err := ParsePrincipal(p.String())
	require.NoError(t, err)
	require.Equal(t, p, parsed)
}

func TestZeroPrincipalIsAllZero(t *testing.T) {
	require.Equal(t, byte(0), ZeroPrincipal[0])
	require.Equal(t, byte(0), ZeroPrincipal[28])
}
