package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"decent-cloud/internal/ledger"
)

// LastSyncPosition implements ledger.PositionStore.
func (s *Store) LastSyncPosition(ctx context.Context) (int64, error) {
	var pos int64
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_position FROM sync_state WHERE id = 1`).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("store: last sync position: %w", err)
	}
	return pos, nil
}

// SetLastSyncPosition implements ledger.PositionStore.
func (s *Store) SetLastSyncPosition(ctx context.Context, position int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_state SET last_sync_position = $1 WHERE id = 1`, position)
	if err != nil {
		return fmt.Errorf("store: set last sync position: %w", err)
	}
	return nil
}

// ProvRegister implements ledger.Dispatcher.
func (s *Store) ProvRegister(e ledger.ProvRegisterEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO providers (pubkey, signature)
		VALUES ($1, $2)
		ON CONFLICT (pubkey) DO UPDATE SET signature = EXCLUDED.signature
	`, e.Pubkey, e.Signature)
	if err != nil {
		return fmt.Errorf("store: prov register: %w", err)
	}
	return nil
}

// UserRegister implements ledger.Dispatcher.
func (s *Store) UserRegister(e ledger.UserRegisterEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO users (pubkey, signature)
		VALUES ($1, $2)
		ON CONFLICT (pubkey) DO UPDATE SET signature = EXCLUDED.signature
	`, e.Pubkey, e.Signature)
	if err != nil {
		return fmt.Errorf("store: user register: %w", err)
	}
	return nil
}

// ProvCheckIn implements ledger.Dispatcher.
func (s *Store) ProvCheckIn(e ledger.ProvCheckInEntry) error {
	var seq int64
	_ = s.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM blocks`).Scan(&seq)
	if _, err := s.db.Exec(`
		INSERT INTO check_ins (pubkey, memo, nonce_sig, block_seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pubkey, block_seq) DO NOTHING
	`, e.Pubkey, e.Memo, e.NonceSig, seq); err != nil {
		return fmt.Errorf("store: check in: %w", err)
	}
	_, err := s.db.Exec(`UPDATE providers SET last_heartbeat_ns = extract(epoch from now()) * 1e9 WHERE pubkey = $1`, e.Pubkey)
	if err != nil {
		return fmt.Errorf("store: check in heartbeat update: %w", err)
	}
	return nil
}

// ProvProfile implements ledger.Dispatcher.
func (s *Store) ProvProfile(e ledger.ProvProfileEntry) error {
	contactsJSON, err := json.Marshal(e.Contacts)
	if err != nil {
		return fmt.Errorf("store: marshal contacts: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO providers (pubkey, signature, name, contacts)
		VALUES ($1, '', $2, $3)
		ON CONFLICT (pubkey) DO UPDATE SET name = EXCLUDED.name, contacts = EXCLUDED.contacts
	`, e.Pubkey, e.Name, contactsJSON)
	if err != nil {
		return fmt.Errorf("store: prov profile: %w", err)
	}
	return nil
}

// DCTokenTransfer implements ledger.Dispatcher. The token ledger's running
// balances are owned entirely by internal/token's in-memory single-writer
// state (§9 design note); this index only needs the sync cursor to advance,
// so transfers are a no-op sink here.
func (s *Store) DCTokenTransfer(ledger.DCTokenTransferEntry) error { return nil }

// DCTokenApproval implements ledger.Dispatcher. See DCTokenTransfer.
func (s *Store) DCTokenApproval(ledger.DCTokenApprovalEntry) error { return nil }

// ReputationChange implements ledger.Dispatcher. Reputation deltas are
// neither indexed here nor folded into any in-memory state; the entry is
// dropped.
func (s *Store) ReputationChange(ledger.ReputationChangeEntry) error { return nil }

// RewardDistribution implements ledger.Dispatcher.
func (s *Store) RewardDistribution(e ledger.RewardDistributionEntry) error {
	_, err := s.db.Exec(`UPDATE reward_state SET last_distribution_ts = $1 WHERE id = 1`, int64(e.LastDistributionNs))
	if err != nil {
		return fmt.Errorf("store: reward distribution: %w", err)
	}
	return nil
}

// Unknown implements ledger.Dispatcher; unrecognized entry labels are
// logged and otherwise dropped, matching the sync engine's documented
// failure model.
func (s *Store) Unknown(e ledger.UnknownEntry) {
	s.log.WithField("label", e.Label).Warn("store: dropping entry with unknown label")
}

// BlockCommitted implements ledger.Dispatcher.
func (s *Store) BlockCommitted(hash [32]byte, timestampNs int64) error {
	_, err := s.db.Exec(`INSERT INTO blocks (hash, timestamp_ns) VALUES ($1, $2)`, hash[:], timestampNs)
	if err != nil {
		return fmt.Errorf("store: block committed: %w", err)
	}
	return nil
}

// BlockCount implements rewards.ChainInfo.
func (s *Store) BlockCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: block count: %w", err)
	}
	return n, nil
}

// LatestBlockHash implements rewards.ChainInfo.
func (s *Store) LatestBlockHash(ctx context.Context) ([]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM blocks ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if err != nil {
		return nil, fmt.Errorf("store: latest block hash: %w", err)
	}
	return hash, nil
}

// LatestBlockTimestampNs implements rewards.ChainInfo.
func (s *Store) LatestBlockTimestampNs(ctx context.Context) (int64, bool, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT timestamp_ns FROM blocks ORDER BY seq DESC LIMIT 1`).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: latest block timestamp: %w", err)
	}
	return ts, true, nil
}

// LastDistributionTs implements rewards.RewardState.
func (s *Store) LastDistributionTs(ctx context.Context) (int64, bool, error) {
	var ts *int64
	err := s.db.QueryRowContext(ctx, `SELECT last_distribution_ts FROM reward_state WHERE id = 1`).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("store: last distribution ts: %w", err)
	}
	if ts == nil {
		return 0, false, nil
	}
	return *ts, true, nil
}

// SetLastDistributionTs implements rewards.RewardState.
func (s *Store) SetLastDistributionTs(ctx context.Context, ts int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reward_state SET last_distribution_ts = $1 WHERE id = 1`, ts)
	if err != nil {
		return fmt.Errorf("store: set last distribution ts: %w", err)
	}
	return nil
}
