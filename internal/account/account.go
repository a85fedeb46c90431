// Package account implements the sign-up and multi-key binding model: an
// account owns zero or more public keys, any of which can sign on its
// behalf until disabled.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"decent-cloud/internal/crypto"
)

// Account is the spec's account row: an id that is the owner's 29-byte
// crypto.Principal, plus optional profile fields.
type Account struct {
	ID            crypto.Principal
	Username      string
	Email         string
	DisplayName   string
	IsAdmin       bool
	EmailVerified bool
	CreatedAtNs   int64
}

// PublicKeyID is the 16-byte identifier of one key bound to an account.
type PublicKeyID [16]byte

// ZeroKeyID is the marker recorded as DisabledByKeyID for admin-initiated
// disables, where no specific key performed the action.
var ZeroKeyID PublicKeyID

// PublicKeyBinding is one key an account has bound; disabling is a
// soft-delete (DisabledAtNs set, row kept for audit).
type PublicKeyBinding struct {
	ID              PublicKeyID
	AccountID       crypto.Principal
	PublicKey       [32]byte
	IsActive        bool
	AddedAtNs       int64
	DisabledAtNs    *int64
	DisabledByKeyID *PublicKeyID
}

// OAuthIdentity links an external OAuth subject to an account.
type OAuthIdentity struct {
	AccountID crypto.Principal
	Provider  string
	SubjectID string
}

var (
	ErrAccountExists   = errors.New("account: already exists")
	ErrAccountNotFound = errors.New("account: not found")
	ErrKeyNotFound     = errors.New("account: public key not found")
	ErrKeyNotActive    = errors.New("account: public key not active")
)

// Store is the persistence seam this package drives.
type Store interface {
	InsertAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id crypto.Principal) (Account, error)
	SetAdmin(ctx context.Context, id crypto.Principal, isAdmin bool) error
	InsertPublicKey(ctx context.Context, b PublicKeyBinding) error
	GetPublicKey(ctx context.Context, id PublicKeyID) (PublicKeyBinding, error)
	DisablePublicKey(ctx context.Context, id PublicKeyID, disabledAtNs int64, disabledBy *PublicKeyID) error
	ResolveByPublicKeyBytes(ctx context.Context, pub [32]byte) (Account, error)
	UpsertOAuthIdentity(ctx context.Context, oi OAuthIdentity) error
}

// NewPublicKeyID draws a random 16-byte key identifier.
func NewPublicKeyID() (PublicKeyID, error) {
	var id PublicKeyID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("account: generate key id: %w", err)
	}
	return id, nil
}

// CreateAccount registers a new account with its first bound key.
func CreateAccount(ctx context.Context, store Store, id crypto.Principal, username, email, displayName string, firstKey [32]byte, now time.Time) (Account, error) {
	if _, err := store.GetAccount(ctx, id); err == nil {
		return Account{}, ErrAccountExists
	}

	acc := Account{
		ID: id, Username: username, Email: email, DisplayName: displayName,
		CreatedAtNs: now.UnixNano(),
	}
	if err := store.InsertAccount(ctx, acc); err != nil {
		return Account{}, fmt.Errorf("account: insert: %w", err)
	}

	keyID, err := NewPublicKeyID()
	if err != nil {
		return Account{}, err
	}
	binding := PublicKeyBinding{
		ID: keyID, AccountID: id, PublicKey: firstKey, IsActive: true, AddedAtNs: now.UnixNano(),
	}
	if err := store.InsertPublicKey(ctx, binding); err != nil {
		return Account{}, fmt.Errorf("account: bind first key: %w", err)
	}
	return acc, nil
}

// BindKey adds an additional active key to an existing account.
func BindKey(ctx context.Context, store Store, accountID crypto.Principal, pub [32]byte, now time.Time) (PublicKeyBinding, error) {
	if _, err := store.GetAccount(ctx, accountID); err != nil {
		return PublicKeyBinding{}, ErrAccountNotFound
	}
	keyID, err := NewPublicKeyID()
	if err != nil {
		return PublicKeyBinding{}, err
	}
	binding := PublicKeyBinding{
		ID: keyID, AccountID: accountID, PublicKey: pub, IsActive: true, AddedAtNs: now.UnixNano(),
	}
	if err := store.InsertPublicKey(ctx, binding); err != nil {
		return PublicKeyBinding{}, fmt.Errorf("account: bind key: %w", err)
	}
	return binding, nil
}

// DisableKey soft-deletes a key. disabledBy is the acting key's id, or nil
// for an admin-initiated disable, which records ZeroKeyID per spec.
func DisableKey(ctx context.Context, store Store, keyID PublicKeyID, disabledBy *PublicKeyID, now time.Time) error {
	binding, err := store.GetPublicKey(ctx, keyID)
	if err != nil {
		return ErrKeyNotFound
	}
	if !binding.IsActive {
		return ErrKeyNotActive
	}
	marker := disabledBy
	if marker == nil {
		zero := ZeroKeyID
		marker = &zero
	}
	return store.DisablePublicKey(ctx, keyID, now.UnixNano(), marker)
}

// ResolveByPublicKey finds the account that owns an active binding for pub.
func ResolveByPublicKey(ctx context.Context, store Store, pub [32]byte) (Account, error) {
	acc, err := store.ResolveByPublicKeyBytes(ctx, pub)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

// SetAdmin flips the admin flag on an account.
func SetAdmin(ctx context.Context, store Store, id crypto.Principal, isAdmin bool) error {
	if _, err := store.GetAccount(ctx, id); err != nil {
		return ErrAccountNotFound
	}
	return store.SetAdmin(ctx, id, isAdmin)
}

// LinkOAuth upserts the OAuth identity binding for an account. The OAuth
// provider's wire protocol itself is an external collaborator; this is
// just the resulting linkage row.
func LinkOAuth(ctx context.Context, store Store, accountID crypto.Principal, provider, subjectID string) error {
	if _, err := store.GetAccount(ctx, accountID); err != nil {
		return ErrAccountNotFound
	}
	return store.UpsertOAuthIdentity(ctx, OAuthIdentity{AccountID: accountID, Provider: provider, SubjectID: subjectID})
}
