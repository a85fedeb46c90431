package api

import (
	"encoding/hex"
	"errors"

	"decent-cloud/internal/crypto"
)

var errBadPublicKey = errors.New("api: invalid public key")

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// parsePublicKeyHex decodes a hex-encoded raw Ed25519 public key and derives
// its principal, the pair every account/key-binding handler needs.
func parsePublicKeyHex(s string) (pub [32]byte, principal crypto.Principal, err error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return pub, principal, errBadPublicKey
	}
	copy(pub[:], raw)
	id, err := crypto.NewVerifyingFromBytes(raw)
	if err != nil {
		return pub, principal, errBadPublicKey
	}
	principal, err = id.ToPrincipal()
	if err != nil {
		return pub, principal, errBadPublicKey
	}
	return pub, principal, nil
}
