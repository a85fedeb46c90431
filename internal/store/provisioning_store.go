package store

import (
	"context"
	"fmt"
	"time"

	"decent-cloud/internal/provisioning"
)

// PendingProvisioning implements provisioning.Store.
func (s *Store) PendingProvisioning(ctx context.Context, limit int) ([]provisioning.CloudResource, error) {
	return s.queryResources(ctx, `
		SELECT id, cloud_account_id, external_id, name, server_type, location, image,
			ssh_pubkey, ssh_key_id, backend_type, credentials_encrypted_hex, status,
			public_ip, gateway_slug, gateway_ssh_port, gateway_port_range_start,
			gateway_port_range_end, provisioning_locked_at, provisioning_locked_by, created_at
		FROM cloud_resources
		WHERE status = $1 AND (provisioning_locked_at IS NULL OR provisioning_locked_at < now() - $2 * interval '1 second')
		ORDER BY created_at ASC LIMIT $3
	`, int(provisioning.StatusProvisioning), provisioning.LeaseTTL.Seconds(), limit)
}

// PendingTermination implements provisioning.Store.
func (s *Store) PendingTermination(ctx context.Context, limit int) ([]provisioning.CloudResource, error) {
	return s.queryResources(ctx, `
		SELECT id, cloud_account_id, external_id, name, server_type, location, image,
			ssh_pubkey, ssh_key_id, backend_type, credentials_encrypted_hex, status,
			public_ip, gateway_slug, gateway_ssh_port, gateway_port_range_start,
			gateway_port_range_end, provisioning_locked_at, provisioning_locked_by, created_at
		FROM cloud_resources
		WHERE status = $1 AND (provisioning_locked_at IS NULL OR provisioning_locked_at < now() - $2 * interval '1 second')
		ORDER BY created_at ASC LIMIT $3
	`, int(provisioning.StatusDeleting), provisioning.LeaseTTL.Seconds(), limit)
}

func (s *Store) queryResources(ctx context.Context, query string, args ...interface{}) ([]provisioning.CloudResource, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query resources: %w", err)
	}
	defer rows.Close()

	var out []provisioning.CloudResource
	for rows.Next() {
		var r provisioning.CloudResource
		var backendType, status int
		if err := rows.Scan(&r.ID, &r.CloudAccountID, &r.ExternalID, &r.Name, &r.ServerType, &r.Location, &r.Image,
			&r.SSHPubkey, &r.SSHKeyID, &backendType, &r.CredentialsEncryptedHex, &status,
			&r.PublicIP, &r.GatewaySlug, &r.GatewaySSHPort, &r.GatewayPortRangeStart,
			&r.GatewayPortRangeEnd, &r.ProvisioningLockedAt, &r.ProvisioningLockedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan resource: %w", err)
		}
		r.BackendType = provisioning.BackendType(backendType)
		r.Status = provisioning.ResourceStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AcquireLock implements provisioning.Store: a conditional UPDATE that only
// succeeds if the row is unlocked or its lock has expired, matching the
// teacher's escrow acquire/defer-release idiom generalized to SQL.
func (s *Store) AcquireLock(ctx context.Context, id, lockHolder string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cloud_resources
		SET provisioning_locked_at = $1, provisioning_locked_by = $2
		WHERE id = $3 AND (provisioning_locked_at IS NULL OR provisioning_locked_at < $4)
	`, now, lockHolder, id, now.Add(-ttl))
	if err != nil {
		return false, fmt.Errorf("store: acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: acquire lock rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock implements provisioning.Store.
func (s *Store) ReleaseLock(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cloud_resources SET provisioning_locked_at = NULL, provisioning_locked_by = NULL WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("store: release lock: %w", err)
	}
	return nil
}

// MarkProvisioned implements provisioning.Store.
func (s *Store) MarkProvisioned(ctx context.Context, id, publicIP, sshKeyID, gatewaySlug string, gatewaySSHPort, portRangeStart, portRangeEnd int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cloud_resources SET
			status = $1, public_ip = $2, ssh_key_id = $3, gateway_slug = $4,
			gateway_ssh_port = $5, gateway_port_range_start = $6, gateway_port_range_end = $7,
			provisioning_locked_at = NULL, provisioning_locked_by = NULL
		WHERE id = $8
	`, int(provisioning.StatusRunning), publicIP, sshKeyID, gatewaySlug, gatewaySSHPort, portRangeStart, portRangeEnd, id)
	if err != nil {
		return fmt.Errorf("store: mark provisioned: %w", err)
	}
	return nil
}

// MarkFailed implements provisioning.Store.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cloud_resources SET status = $1, provisioning_locked_at = NULL, provisioning_locked_by = NULL WHERE id = $2
	`, int(provisioning.StatusFailed), id)
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	return nil
}

// MarkTerminated implements provisioning.Store.
func (s *Store) MarkTerminated(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cloud_resources SET status = $1, provisioning_locked_at = NULL, provisioning_locked_by = NULL WHERE id = $2
	`, int(provisioning.StatusDeleted), id)
	if err != nil {
		return fmt.Errorf("store: mark terminated: %w", err)
	}
	return nil
}
