package delegation

import (
	"context"
	"testing"

	"decent-cloud/internal/crypto"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	byAgent    map[crypto.Principal]Delegation
	heartbeats map[crypto.Principal]Heartbeat
}

func newMemStore() *memStore {
	return &memStore{byAgent: map[crypto.Principal]Delegation{}, heartbeats: map[crypto.Principal]Heartbeat{}}
}

func (m *memStore) Upsert(ctx context.Context, d Delegation) error {
	m.byAgent[d.AgentPubkey] = d
	return nil
}
func (m *memStore) ByAgentPubkey(ctx context.Context, agentPubkey crypto.Principal) (Delegation, bool, error) {
	d, ok := m.byAgent[agentPubkey]
	return d, ok, nil
}
func (m *memStore) Revoke(ctx context.Context, agentPubkey crypto.Principal, nowNs int64) error {
	d := m.byAgent[agentPubkey]
	d.RevokedAtNs = &nowNs
	m.byAgent[agentPubkey] = d
	return nil
}
func (m *memStore) UpsertHeartbeat(ctx context.Context, hb Heartbeat) error {
	m.heartbeats[hb.ProviderPubkey] = hb
	return nil
}
func (m *memStore) HeartbeatByProvider(ctx context.Context, providerPubkey crypto.Principal) (Heartbeat, bool, error) {
	hb, ok := m.heartbeats[providerPubkey]
	return hb, ok, nil
}
func (m *memStore) StaleHeartbeats(ctx context.Context, olderThanNs int64) ([]crypto.Principal, error) {
	var out []crypto.Principal
	for pk, hb := range m.heartbeats {
		if hb.LastHeartbeatNs < olderThanNs {
			out = append(out, pk)
		}
	}
	return out, nil
}

func newIdentity(t *testing.T, seedByte byte) crypto.Identity {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = seedByte
	id, err := crypto.NewSigningFromSeed(seed)
	require.NoError(t, err)
	return id
}

func TestSigningMessageRejectsUnknownPermission(t *testing.T) {
	var agent, provider [32]byte
	_, err := SigningMessage(agent, provider, []Permission{"bogus"}, nil, nil)
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	providerID := newIdentity(t, 1)
	providerPk, err := providerID.ToPrincipal()
	require.NoError(t, err)
	var providerRaw, agentRaw [32]byte
	copy(providerRaw[:], providerID.Public)
	agentRaw[0] = 9
	agentRaw[31] = 2
	agentID, err := crypto.NewVerifyingFromBytes(agentRaw[:])
	require.NoError(t, err)
	agentPk, err := agentID.ToPrincipal()
	require.NoError(t, err)

	perms := []Permission{PermProvision, PermHeartbeat}
	msg, err := SigningMessage(agentRaw, providerRaw, perms, nil, nil)
	require.NoError(t, err)
	sig, err := providerID.Sign(msg)
	require.NoError(t, err)

	d := Delegation{
		AgentPubkey: agentPk, AgentPubkeyRaw: agentRaw,
		ProviderPubkey: providerPk, ProviderPubkeyRaw: providerRaw,
		Permissions: perms, Signature: sig,
	}
	require.NoError(t, VerifySignature(d, providerID))
}

func TestVerifySignatureRejectsTamperedPermissions(t *testing.T) {
	providerID := newIdentity(t, 2)
	providerPk, _ := providerID.ToPrincipal()
	var providerRaw, agentRaw [32]byte
	copy(providerRaw[:], providerID.Public)
	agentRaw[0] = 9
	agentID, err := crypto.NewVerifyingFromBytes(agentRaw[:])
	require.NoError(t, err)
	agentPk, err := agentID.ToPrincipal()
	require.NoError(t, err)

	msg, err := SigningMessage(agentRaw, providerRaw, []Permission{PermProvision}, nil, nil)
	require.NoError(t, err)
	sig, err := providerID.Sign(msg)
	require.NoError(t, err)

	tampered := Delegation{
		AgentPubkey: agentPk, AgentPubkeyRaw: agentRaw,
		ProviderPubkey: providerPk, ProviderPubkeyRaw: providerRaw,
		Permissions: []Permission{PermProvision, PermHeartbeat}, Signature: sig,
	}
	require.ErrorIs(t, VerifySignature(tampered, providerID), ErrBadSignature)
}

func TestAuthorizeProviderKeyItself(t *testing.T) {
	store := newMemStore()
	var pk crypto.Principal
	pk[0] = 1
	err := Authorize(context.Background(), store, pk, pk, PermProvision, 1000)
	require.NoError(t, err)
}

func TestAuthorizeActiveDelegationWithScope(t *testing.T) {
	store := newMemStore()
	var provider, agent crypto.Principal
	provider[0] = 1
	agent[0] = 2
	expires := uint64(5000)
	store.Upsert(context.Background(), Delegation{
		AgentPubkey: agent, ProviderPubkey: provider,
		Permissions: []Permission{PermHeartbeat}, ExpiresAtNs: &expires,
	})

	require.NoError(t, Authorize(context.Background(), store, agent, provider, PermHeartbeat, 1000))
	require.ErrorIs(t, Authorize(context.Background(), store, agent, provider, PermProvision, 1000), ErrScopeNotPermitted)
}

func TestAuthorizeExpiredDelegation(t *testing.T) {
	store := newMemStore()
	var provider, agent crypto.Principal
	provider[0] = 1
	agent[0] = 2
	expires := uint64(500)
	store.Upsert(context.Background(), Delegation{
		AgentPubkey: agent, ProviderPubkey: provider,
		Permissions: []Permission{PermHeartbeat}, ExpiresAtNs: &expires,
	})
	err := Authorize(context.Background(), store, agent, provider, PermHeartbeat, 1000)
	require.ErrorIs(t, err, ErrExpired)
}

func TestAuthorizeRevokedDelegation(t *testing.T) {
	store := newMemStore()
	var provider, agent crypto.Principal
	provider[0] = 1
	agent[0] = 2
	store.Upsert(context.Background(), Delegation{AgentPubkey: agent, ProviderPubkey: provider, Permissions: []Permission{PermHeartbeat}})
	require.NoError(t, store.Revoke(context.Background(), agent, 900))

	err := Authorize(context.Background(), store, agent, provider, PermHeartbeat, 1000)
	require.ErrorIs(t, err, ErrRevoked)
}

func TestAuthorizeNoDelegation(t *testing.T) {
	store := newMemStore()
	var provider, agent crypto.Principal
	provider[0] = 1
	agent[0] = 2
	err := Authorize(context.Background(), store, agent, provider, PermHeartbeat, 1000)
	require.ErrorIs(t, err, ErrNoDelegation)
}

func TestSweepStaleHeartbeats(t *testing.T) {
	store := newMemStore()
	var fresh, stale crypto.Principal
	fresh[0] = 1
	stale[0] = 2
	store.UpsertHeartbeat(context.Background(), Heartbeat{ProviderPubkey: fresh, LastHeartbeatNs: 9_000_000_000_000})
	store.UpsertHeartbeat(context.Background(), Heartbeat{ProviderPubkey: stale, LastHeartbeatNs: 0})

	result, err := SweepStaleHeartbeats(context.Background(), store, 9_000_000_000_000+HeartbeatStaleAfter.Nanoseconds()-1)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, stale, result[0])
}
