// Package crypto provides the Ed25519 identity primitives shared by every
// signed operation in the node: provider/user registration, check-ins,
// delegations, and signed HTTP requests.
package crypto

import (
	"crypto"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DomainContext is mixed into every signature so that a signature produced
// for this system can never verify against another Ed25519-based protocol.
const DomainContext = "decent-cloud"

const (
	PublicKeySize  = ed25519.PublicKeySize
	SignatureSize  = ed25519.SignatureSize
	PrincipalSize  = 29
	principalTagID = 0x02 // self-authenticating tag, matches IC principal convention
)

var (
	ErrBadKeyLength = errors.New("crypto: bad key length")
	ErrBadSignature = errors.New("crypto: signature verification failed")
	ErrBadFormat    = errors.New("crypto: bad format")
)

// Identity wraps an Ed25519 key pair. A verifying-only Identity has a nil
// Private field and can only Verify, never Sign.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

var signOpts = &ed25519.Options{Hash: crypto.Hash(0), Context: DomainContext}

// NewSigningFromSeed derives a full signing Identity from a 32-byte seed.
func NewSigningFromSeed(seed []byte) (Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return Identity{}, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrBadKeyLength, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Identity{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// NewVerifyingFromBytes builds a verify-only Identity from a 32-byte public key.
func NewVerifyingFromBytes(pk []byte) (Identity, error) {
	if len(pk) != ed25519.PublicKeySize {
		return Identity{}, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrBadKeyLength, ed25519.PublicKeySize, len(pk))
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, pk)
	return Identity{Public: pub}, nil
}

// Sign produces a domain-separated Ed25519ctx signature over msg. Requires a
// private key.
func (id Identity) Sign(msg []byte) ([]byte, error) {
	if len(id.Private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: identity has no private key", ErrBadKeyLength)
	}
	sig, err := id.Private.Sign(nil, msg, signOpts)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return sig, nil
}

// Verify checks a domain-separated Ed25519ctx signature against msg.
func (id Identity) Verify(msg, sig []byte) error {
	if len(id.Public) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: identity has no public key", ErrBadKeyLength)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrBadKeyLength, ed25519.SignatureSize, len(sig))
	}
	if err := ed25519.VerifyWithOptions(id.Public, msg, sig, signOpts); err != nil {
		return ErrBadSignature
	}
	return nil
}

// Principal is the 29-byte canonical account identifier derived from a
// verifying key: a 28-byte blake2b-224 digest of the public key followed by
// a self-authenticating tag byte.
type Principal [PrincipalSize]byte

// ToPrincipal derives the canonical principal for this identity's public key.
func (id Identity) ToPrincipal() (Principal, error) {
	if len(id.Public) != ed25519.PublicKeySize {
		return Principal{}, fmt.Errorf("%w: identity has no public key", ErrBadKeyLength)
	}
	h, err := blake2b.New(28, nil)
	if err != nil {
		return Principal{}, fmt.Errorf("crypto: blake2b init: %w", err)
	}
	h.Write(id.Public)
	digest := h.Sum(nil)

	var p Principal
	copy(p[:28], digest)
	p[28] = principalTagID
	return p, nil
}

// ICRCAccount is the {owner, subaccount} pair used by the token ledger.
type ICRCAccount struct {
	Owner      Principal
	Subaccount *[32]byte
}

// ToICRCAccount returns the default-subaccount ICRC account for this identity.
func (id Identity) ToICRCAccount() (ICRCAccount, error) {
	p, err := id.ToPrincipal()
	if err != nil {
		return ICRCAccount{}, err
	}
	return ICRCAccount{Owner: p}, nil
}

func (p Principal) String() string { return hex.EncodeToString(p[:]) }

// Short returns an abbreviated hex form, convenient for log lines and memos.
func (p Principal) Short() string {
	s := hex.EncodeToString(p[:])
	if len(s) <= 8 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

// ParsePrincipal parses a hex-encoded principal string.
func ParsePrincipal(s string) (Principal, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if len(b) != PrincipalSize {
		return Principal{}, fmt.Errorf("%w: principal must be %d bytes, got %d", ErrBadKeyLength, PrincipalSize, len(b))
	}
	var p Principal
	copy(p[:], b)
	return p, nil
}

// ZeroPrincipal is the distinguished minting account: transfers from it are
// mints, transfers to it are burns.
var ZeroPrincipal Principal
