// Package delegation implements the agent delegation trust model: signed
// delegations binding an agent keypair to a provider identity with scoped
// permissions, revocation, and heartbeat-based liveness.
package delegation

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"decent-cloud/internal/crypto"
)

// Permission is one of the scoped capabilities an agent delegation can grant.
type Permission string

const (
	PermProvision      Permission = "provision"
	PermHealthCheck    Permission = "health_check"
	PermHeartbeat      Permission = "heartbeat"
	PermFetchContracts Permission = "fetch_contracts"
)

var validPermissions = map[Permission]bool{
	PermProvision: true, PermHealthCheck: true, PermHeartbeat: true, PermFetchContracts: true,
}

// HeartbeatStaleAfter is the threshold past which an agent is considered
// offline absent a fresher heartbeat.
const HeartbeatStaleAfter = 5 * time.Minute

var (
	ErrUnknownPermission  = errors.New("delegation: unknown permission")
	ErrBadSignature       = errors.New("delegation: signature verification failed")
	ErrRevoked            = errors.New("delegation: delegation revoked")
	ErrExpired            = errors.New("delegation: delegation expired")
	ErrScopeNotPermitted  = errors.New("delegation: operation not in delegation scope")
	ErrNoDelegation       = errors.New("delegation: no active delegation for agent")
)

// Delegation is a signed grant of scoped authority from a provider key to an
// agent key. AgentPubkey/ProviderPubkey are the derived Principals used to
// key storage and authorization lookups throughout this package;
// AgentPubkeyRaw/ProviderPubkeyRaw are the underlying 32-byte Ed25519 keys
// the signature actually covers, per the wire layout's signing message --
// a Principal is a one-way derivation of a key and can't be turned back into
// one, so the raw keys must be carried alongside it rather than recomputed.
type Delegation struct {
	AgentPubkey       crypto.Principal
	AgentPubkeyRaw    [32]byte
	ProviderPubkey    crypto.Principal
	ProviderPubkeyRaw [32]byte
	Permissions       []Permission
	ExpiresAtNs       *uint64
	Label             *string
	Signature         []byte
	CreatedAtNs       int64
	RevokedAtNs       *int64
}

// SigningMessage reconstructs the canonical bytes a provider must sign to
// authorize a delegation: agent_pk(32) || provider_pk(32) || perms_json ||
// expires_le (omitted if none) || label (omitted if none). The keys here are
// the raw 32-byte Ed25519 public keys, not the derived Principal -- a
// Principal cannot be reconstituted into a verifying key, so the signature
// must cover the keys themselves.
func SigningMessage(agentPk, providerPk [32]byte, perms []Permission, expiresAtNs *uint64, label *string) ([]byte, error) {
	for _, p := range perms {
		if !validPermissions[p] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("delegation: marshal permissions: %w", err)
	}

	msg := make([]byte, 0, 32+32+len(permsJSON)+8+64)
	msg = append(msg, agentPk[:]...)
	msg = append(msg, providerPk[:]...)
	msg = append(msg, permsJSON...)
	if expiresAtNs != nil {
		var le [8]byte
		binary.LittleEndian.PutUint64(le[:], *expiresAtNs)
		msg = append(msg, le[:]...)
	}
	if label != nil {
		msg = append(msg, []byte(*label)...)
	}
	return msg, nil
}

// VerifySignature reconstructs the signing message and verifies it against
// the provider's public key. Callers must do this before persisting a
// delegation via Store.Upsert.
func VerifySignature(d Delegation, providerIdentity crypto.Identity) error {
	msg, err := SigningMessage(d.AgentPubkeyRaw, d.ProviderPubkeyRaw, d.Permissions, d.ExpiresAtNs, d.Label)
	if err != nil {
		return err
	}
	if err := providerIdentity.Verify(msg, d.Signature); err != nil {
		return ErrBadSignature
	}
	return nil
}

// IsActive reports whether d is usable at time nowNs: unrevoked and
// unexpired.
func (d Delegation) IsActive(nowNs int64) bool {
	if d.RevokedAtNs != nil {
		return false
	}
	if d.ExpiresAtNs != nil && int64(*d.ExpiresAtNs) <= nowNs {
		return false
	}
	return true
}

// HasPermission reports whether d's scope includes perm.
func (d Delegation) HasPermission(perm Permission) bool {
	for _, p := range d.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Store persists delegations keyed by agent pubkey (unique) and heartbeats
// keyed by provider pubkey.
type Store interface {
	Upsert(ctx context.Context, d Delegation) error
	ByAgentPubkey(ctx context.Context, agentPubkey crypto.Principal) (Delegation, bool, error)
	Revoke(ctx context.Context, agentPubkey crypto.Principal, nowNs int64) error
	UpsertHeartbeat(ctx context.Context, hb Heartbeat) error
	HeartbeatByProvider(ctx context.Context, providerPubkey crypto.Principal) (Heartbeat, bool, error)
	StaleHeartbeats(ctx context.Context, olderThanNs int64) ([]crypto.Principal, error)
}

// Heartbeat is the provider-agent liveness row.
type Heartbeat struct {
	ProviderPubkey  crypto.Principal
	LastHeartbeatNs int64
	Version         string
	ProvisionerType string
	Capabilities    []string
	ActiveContracts int
	Online          bool
}

// Authorize checks that either the caller's principal IS the provider, or
// the caller holds an active delegation scoped to op.
func Authorize(ctx context.Context, store Store, callerPubkey, providerPubkey crypto.Principal, op Permission, nowNs int64) error {
	if callerPubkey == providerPubkey {
		return nil
	}
	d, ok, err := store.ByAgentPubkey(ctx, callerPubkey)
	if err != nil {
		return fmt.Errorf("delegation: lookup: %w", err)
	}
	if !ok {
		return ErrNoDelegation
	}
	if d.ProviderPubkey != providerPubkey {
		return ErrNoDelegation
	}
	if !d.IsActive(nowNs) {
		if d.RevokedAtNs != nil {
			return ErrRevoked
		}
		return ErrExpired
	}
	if !d.HasPermission(op) {
		return ErrScopeNotPermitted
	}
	return nil
}

// SweepStaleHeartbeats flips online=0 (through Store.StaleHeartbeats) for any
// online heartbeat older than HeartbeatStaleAfter and returns those providers
// sorted; callers run this on a periodic background tick.
func SweepStaleHeartbeats(ctx context.Context, store Store, nowNs int64) ([]crypto.Principal, error) {
	cutoff := nowNs - HeartbeatStaleAfter.Nanoseconds()
	stale, err := store.StaleHeartbeats(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].String() < stale[j].String() })
	return stale, nil
}
