package store

import (
	"context"
	"fmt"

	"decent-cloud/internal/account"
	"decent-cloud/internal/crypto"
)

// InsertAccount implements account.Store.
func (s *Store) InsertAccount(ctx context.Context, a account.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, email, display_name, is_admin, email_verified, created_at_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID[:], a.Username, a.Email, a.DisplayName, a.IsAdmin, a.EmailVerified, a.CreatedAtNs)
	if err != nil {
		return fmt.Errorf("store: insert account: %w", err)
	}
	return nil
}

// GetAccount implements account.Store.
func (s *Store) GetAccount(ctx context.Context, id crypto.Principal) (account.Account, error) {
	var a account.Account
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, display_name, is_admin, email_verified, created_at_ns
		FROM accounts WHERE id = $1
	`, id[:]).Scan(&raw, &a.Username, &a.Email, &a.DisplayName, &a.IsAdmin, &a.EmailVerified, &a.CreatedAtNs)
	if err == errNoRows {
		return account.Account{}, account.ErrAccountNotFound
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("store: get account: %w", err)
	}
	copy(a.ID[:], raw)
	return a, nil
}

// SetAdmin implements account.Store.
func (s *Store) SetAdmin(ctx context.Context, id crypto.Principal, isAdmin bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET is_admin = $1 WHERE id = $2`, isAdmin, id[:])
	if err != nil {
		return fmt.Errorf("store: set admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// InsertPublicKey implements account.Store.
func (s *Store) InsertPublicKey(ctx context.Context, b account.PublicKeyBinding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO public_keys (id, account_id, public_key, is_active, added_at_ns, disabled_at_ns, disabled_by_key_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID[:], b.AccountID[:], b.PublicKey[:], b.IsActive, b.AddedAtNs, b.DisabledAtNs, keyIDBytes(b.DisabledByKeyID))
	if err != nil {
		return fmt.Errorf("store: insert public key: %w", err)
	}
	return nil
}

// GetPublicKey implements account.Store.
func (s *Store) GetPublicKey(ctx context.Context, id account.PublicKeyID) (account.PublicKeyBinding, error) {
	var b account.PublicKeyBinding
	var idRaw, accountRaw, pubRaw, disabledByRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, public_key, is_active, added_at_ns, disabled_at_ns, disabled_by_key_id
		FROM public_keys WHERE id = $1
	`, id[:]).Scan(&idRaw, &accountRaw, &pubRaw, &b.IsActive, &b.AddedAtNs, &b.DisabledAtNs, &disabledByRaw)
	if err == errNoRows {
		return account.PublicKeyBinding{}, account.ErrKeyNotFound
	}
	if err != nil {
		return account.PublicKeyBinding{}, fmt.Errorf("store: get public key: %w", err)
	}
	copy(b.ID[:], idRaw)
	copy(b.AccountID[:], accountRaw)
	copy(b.PublicKey[:], pubRaw)
	if len(disabledByRaw) == len(account.PublicKeyID{}) {
		var kid account.PublicKeyID
		copy(kid[:], disabledByRaw)
		b.DisabledByKeyID = &kid
	}
	return b, nil
}

// DisablePublicKey implements account.Store.
func (s *Store) DisablePublicKey(ctx context.Context, id account.PublicKeyID, disabledAtNs int64, disabledBy *account.PublicKeyID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE public_keys SET is_active = false, disabled_at_ns = $1, disabled_by_key_id = $2
		WHERE id = $3
	`, disabledAtNs, keyIDBytes(disabledBy), id[:])
	if err != nil {
		return fmt.Errorf("store: disable public key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrKeyNotFound
	}
	return nil
}

// ResolveByPublicKeyBytes implements account.Store.
func (s *Store) ResolveByPublicKeyBytes(ctx context.Context, pub [32]byte) (account.Account, error) {
	var a account.Account
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.username, a.email, a.display_name, a.is_admin, a.email_verified, a.created_at_ns
		FROM accounts a
		JOIN public_keys pk ON pk.account_id = a.id
		WHERE pk.public_key = $1 AND pk.is_active = true
	`, pub[:]).Scan(&raw, &a.Username, &a.Email, &a.DisplayName, &a.IsAdmin, &a.EmailVerified, &a.CreatedAtNs)
	if err == errNoRows {
		return account.Account{}, account.ErrKeyNotActive
	}
	if err != nil {
		return account.Account{}, fmt.Errorf("store: resolve by public key: %w", err)
	}
	copy(a.ID[:], raw)
	return a, nil
}

// UpsertOAuthIdentity implements account.Store.
func (s *Store) UpsertOAuthIdentity(ctx context.Context, oi account.OAuthIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_identities (account_id, provider, subject_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, subject_id) DO UPDATE SET account_id = EXCLUDED.account_id
	`, oi.AccountID[:], oi.Provider, oi.SubjectID)
	if err != nil {
		return fmt.Errorf("store: upsert oauth identity: %w", err)
	}
	return nil
}

func keyIDBytes(id *account.PublicKeyID) []byte {
	if id == nil {
		return nil
	}
	return id[:]
}
