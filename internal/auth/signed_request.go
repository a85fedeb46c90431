// Package auth implements the signed-request authentication scheme shared
// by every privileged HTTP endpoint: a canonical message binding method,
// path, body, nonce and timestamp to the caller's Ed25519 public key.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"decent-cloud/internal/crypto"

	"github.com/google/uuid"
)

const (
	HeaderPublicKey = "X-Public-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	// MaxClockSkew is the maximum tolerated distance between a request's
	// timestamp and the verifier's clock, in either direction.
	MaxClockSkew = 5 * time.Minute
)

// Failure classifies an auth rejection so HTTP handlers can map it to the
// right status code (400/401/403) without string matching.
type Failure struct {
	Status int
	Reason string
}

func (f *Failure) Error() string { return f.Reason }

func fail(status int, reason string) error { return &Failure{Status: status, Reason: reason} }

var (
	ErrMissingHeader    = errors.New("auth: missing required header")
	ErrTimestampExpired = errors.New("auth: timestamp expired")
	ErrInvalidFormat    = errors.New("auth: invalid format")
	ErrInvalidSignature = errors.New("auth: invalid signature")
)

// Headers is the parsed, still-unverified form of the five signed-request
// headers.
type Headers struct {
	PublicKeyHex string
	SignatureHex string
	TimestampStr string
	Nonce        string
}

// ExtractHeaders pulls the four auth headers out of an incoming request;
// Content-Type participates in the canonical message implicitly via the
// request itself and is not re-extracted here.
func ExtractHeaders(h http.Header) (Headers, error) {
	hdr := Headers{
		PublicKeyHex: h.Get(HeaderPublicKey),
		SignatureHex: h.Get(HeaderSignature),
		TimestampStr: h.Get(HeaderTimestamp),
		Nonce:        h.Get(HeaderNonce),
	}
	if hdr.PublicKeyHex == "" || hdr.SignatureHex == "" || hdr.TimestampStr == "" || hdr.Nonce == "" {
		return Headers{}, fail(http.StatusUnauthorized, "missing signed-request header")
	}
	return hdr, nil
}

// CanonicalMessage renders the exact bytes that must be signed:
// ascii(timestamp) || ascii(nonce) || ascii(method) || ascii(path) || body.
func CanonicalMessage(timestamp, nonce, method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+len(nonce)+len(method)+len(path)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, nonce...)
	msg = append(msg, method...)
	msg = append(msg, path...)
	msg = append(msg, body...)
	return msg
}

// Verified is the result of a successful signed-request verification.
type Verified struct {
	PublicKey crypto.Identity
	Principal crypto.Principal
	Timestamp int64
	Nonce     string
}

// Verify validates the five-header scheme against method/path/body and
// returns the caller's identity on success. now is injected for testability.
func Verify(hdr Headers, method, path string, body []byte, now time.Time) (Verified, error) {
	pkBytes, err := hex.DecodeString(hdr.PublicKeyHex)
	if err != nil || len(pkBytes) != crypto.PublicKeySize {
		return Verified{}, fail(http.StatusBadRequest, "bad public key format")
	}
	sigBytes, err := hex.DecodeString(hdr.SignatureHex)
	if err != nil || len(sigBytes) != crypto.SignatureSize {
		return Verified{}, fail(http.StatusBadRequest, "bad signature format")
	}

	ts, err := parseTimestampNs(hdr.TimestampStr)
	if err != nil {
		return Verified{}, fail(http.StatusBadRequest, "bad timestamp format")
	}
	nowNs := now.UnixNano()
	skew := nowNs - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew.Nanoseconds() {
		return Verified{}, fail(http.StatusUnauthorized, "timestamp expired")
	}

	if _, err := uuid.Parse(hdr.Nonce); err != nil {
		return Verified{}, fail(http.StatusBadRequest, "bad nonce format")
	}

	id, err := crypto.NewVerifyingFromBytes(pkBytes)
	if err != nil {
		return Verified{}, fail(http.StatusBadRequest, "bad public key")
	}

	msg := CanonicalMessage(hdr.TimestampStr, hdr.Nonce, method, path, body)
	if err := id.Verify(msg, sigBytes); err != nil {
		return Verified{}, fail(http.StatusUnauthorized, "invalid signature")
	}

	principal, err := id.ToPrincipal()
	if err != nil {
		return Verified{}, fail(http.StatusInternalServerError, "principal derivation failed")
	}
	return Verified{PublicKey: id, Principal: principal, Timestamp: ts, Nonce: hdr.Nonce}, nil
}

func parseTimestampNs(s string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(s, "%d", &ts)
	if err != nil {
		return 0, ErrInvalidFormat
	}
	return ts, nil
}

// AccountLookup resolves a principal to account admin status, for the admin
// variant of this auth scheme.
type AccountLookup interface {
	IsAdmin(principal crypto.Principal) (bool, error)
}

// RequireAdmin re-checks an already-verified caller against the account
// store and fails with 403 if the account is missing or not an admin.
func RequireAdmin(v Verified, accounts AccountLookup) error {
	isAdmin, err := accounts.IsAdmin(v.Principal)
	if err != nil {
		return fail(http.StatusInternalServerError, "account lookup failed")
	}
	if !isAdmin {
		return fail(http.StatusForbidden, "admin privileges required")
	}
	return nil
}
