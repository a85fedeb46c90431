package store

import (
	"context"
	"fmt"

	"decent-cloud/internal/crypto"
)

// IsRegistered implements rewards.ProviderRegistry.
func (s *Store) IsRegistered(ctx context.Context, pubkey crypto.Principal) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM providers WHERE pubkey = $1)`, pubkey[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: is registered: %w", err)
	}
	return exists, nil
}

// EligibleForNextDistribution implements rewards.ProviderRegistry: providers
// who checked in during the most recently committed block.
func (s *Store) EligibleForNextDistribution(ctx context.Context) ([]crypto.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey FROM check_ins
		WHERE block_seq = (SELECT COALESCE(MAX(seq), 0) FROM blocks)
	`)
	if err != nil {
		return nil, fmt.Errorf("store: eligible providers: %w", err)
	}
	defer rows.Close()

	var out []crypto.Principal
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan eligible provider: %w", err)
		}
		var p crypto.Principal
		copy(p[:], raw)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendCheckIn implements rewards.ProviderRegistry.
func (s *Store) AppendCheckIn(ctx context.Context, pubkey crypto.Principal, memo string, nonceSig []byte) error {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM blocks`).Scan(&seq); err != nil {
		return fmt.Errorf("store: append check-in block seq: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO check_ins (pubkey, memo, nonce_sig, block_seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pubkey, block_seq) DO UPDATE SET memo = EXCLUDED.memo, nonce_sig = EXCLUDED.nonce_sig
	`, pubkey[:], memo, nonceSig, seq)
	if err != nil {
		return fmt.Errorf("store: append check-in: %w", err)
	}
	return nil
}
