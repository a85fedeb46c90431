package store

import (
	"context"
	"encoding/json"
	"fmt"

	"decent-cloud/internal/crypto"
	"decent-cloud/internal/delegation"
)

// Upsert implements delegation.Store.
func (s *Store) Upsert(ctx context.Context, d delegation.Delegation) error {
	permsJSON, err := json.Marshal(d.Permissions)
	if err != nil {
		return fmt.Errorf("store: marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delegations (agent_pubkey, provider_pubkey, permissions, expires_at_ns, label, signature, created_at_ns, revoked_at_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_pubkey) DO UPDATE SET
			provider_pubkey = EXCLUDED.provider_pubkey,
			permissions = EXCLUDED.permissions,
			expires_at_ns = EXCLUDED.expires_at_ns,
			label = EXCLUDED.label,
			signature = EXCLUDED.signature,
			created_at_ns = EXCLUDED.created_at_ns,
			revoked_at_ns = EXCLUDED.revoked_at_ns
	`, d.AgentPubkey[:], d.ProviderPubkey[:], permsJSON, d.ExpiresAtNs, d.Label, d.Signature, d.CreatedAtNs, d.RevokedAtNs)
	if err != nil {
		return fmt.Errorf("store: upsert delegation: %w", err)
	}
	return nil
}

// ByAgentPubkey implements delegation.Store.
func (s *Store) ByAgentPubkey(ctx context.Context, agentPubkey crypto.Principal) (delegation.Delegation, bool, error) {
	var d delegation.Delegation
	var agentRaw, providerRaw []byte
	var permsJSON []byte
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_pubkey, provider_pubkey, permissions, expires_at_ns, label, signature, created_at_ns, revoked_at_ns
		FROM delegations WHERE agent_pubkey = $1
	`, agentPubkey[:])
	err := row.Scan(&agentRaw, &providerRaw, &permsJSON, &d.ExpiresAtNs, &d.Label, &d.Signature, &d.CreatedAtNs, &d.RevokedAtNs)
	if err == errNoRows {
		return delegation.Delegation{}, false, nil
	}
	if err != nil {
		return delegation.Delegation{}, false, fmt.Errorf("store: by agent pubkey: %w", err)
	}
	copy(d.AgentPubkey[:], agentRaw)
	copy(d.ProviderPubkey[:], providerRaw)
	if err := json.Unmarshal(permsJSON, &d.Permissions); err != nil {
		return delegation.Delegation{}, false, fmt.Errorf("store: unmarshal permissions: %w", err)
	}
	return d, true, nil
}

// Revoke implements delegation.Store.
func (s *Store) Revoke(ctx context.Context, agentPubkey crypto.Principal, nowNs int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE delegations SET revoked_at_ns = $1 WHERE agent_pubkey = $2`, nowNs, agentPubkey[:])
	if err != nil {
		return fmt.Errorf("store: revoke delegation: %w", err)
	}
	return nil
}

// UpsertHeartbeat implements delegation.Store.
func (s *Store) UpsertHeartbeat(ctx context.Context, hb delegation.Heartbeat) error {
	capsJSON, err := json.Marshal(hb.Capabilities)
	if err != nil {
		return fmt.Errorf("store: marshal capabilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO heartbeats (provider_pubkey, last_heartbeat_ns, version, provisioner_type, capabilities, active_contracts, online)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_pubkey) DO UPDATE SET
			last_heartbeat_ns = EXCLUDED.last_heartbeat_ns,
			version = EXCLUDED.version,
			provisioner_type = EXCLUDED.provisioner_type,
			capabilities = EXCLUDED.capabilities,
			active_contracts = EXCLUDED.active_contracts,
			online = EXCLUDED.online
	`, hb.ProviderPubkey[:], hb.LastHeartbeatNs, hb.Version, hb.ProvisionerType, capsJSON, hb.ActiveContracts, hb.Online)
	if err != nil {
		return fmt.Errorf("store: upsert heartbeat: %w", err)
	}
	return nil
}

// HeartbeatByProvider implements delegation.Store.
func (s *Store) HeartbeatByProvider(ctx context.Context, providerPubkey crypto.Principal) (delegation.Heartbeat, bool, error) {
	var hb delegation.Heartbeat
	var raw []byte
	var capsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT provider_pubkey, last_heartbeat_ns, version, provisioner_type, capabilities, active_contracts, online
		FROM heartbeats WHERE provider_pubkey = $1
	`, providerPubkey[:]).Scan(&raw, &hb.LastHeartbeatNs, &hb.Version, &hb.ProvisionerType, &capsJSON, &hb.ActiveContracts, &hb.Online)
	if err == errNoRows {
		return delegation.Heartbeat{}, false, nil
	}
	if err != nil {
		return delegation.Heartbeat{}, false, fmt.Errorf("store: heartbeat by provider: %w", err)
	}
	copy(hb.ProviderPubkey[:], raw)
	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &hb.Capabilities); err != nil {
			return delegation.Heartbeat{}, false, fmt.Errorf("store: unmarshal capabilities: %w", err)
		}
	}
	return hb, true, nil
}

// StaleHeartbeats implements delegation.Store: it marks every online
// heartbeat older than olderThanNs offline and returns those providers.
func (s *Store) StaleHeartbeats(ctx context.Context, olderThanNs int64) ([]crypto.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `UPDATE heartbeats SET online = false WHERE last_heartbeat_ns < $1 AND online = true RETURNING provider_pubkey`, olderThanNs)
	if err != nil {
		return nil, fmt.Errorf("store: stale heartbeats: %w", err)
	}
	defer rows.Close()

	var out []crypto.Principal
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan stale heartbeat: %w", err)
		}
		var p crypto.Principal
		copy(p[:], raw)
		out = append(out, p)
	}
	return out, rows.Err()
}
