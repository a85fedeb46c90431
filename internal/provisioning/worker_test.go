package provisioning

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type lockedRow struct {
	holder string
	expiry time.Time
}

type memStore struct {
	resources     map[string]CloudResource
	locks         map[string]lockedRow
	provisionedID string
	failedID      string
	terminatedID  string
}

func newMemStore() *memStore {
	return &memStore{resources: map[string]CloudResource{}, locks: map[string]lockedRow{}}
}

func (m *memStore) PendingProvisioning(_ context.Context, limit int) ([]CloudResource, error) {
	var out []CloudResource
	for _, r := range m.resources {
		if r.Status == StatusProvisioning && r.PublicIP == nil {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) PendingTermination(_ context.Context, limit int) ([]CloudResource, error) {
	var out []CloudResource
	for _, r := range m.resources {
		if r.Status == StatusDeleting {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) AcquireLock(_ context.Context, id, lockHolder string, now time.Time, ttl time.Duration) (bool, error) {
	if existing, ok := m.locks[id]; ok && now.Before(existing.expiry) {
		return false, nil
	}
	m.locks[id] = lockedRow{holder: lockHolder, expiry: now.Add(ttl)}
	return true, nil
}

func (m *memStore) ReleaseLock(_ context.Context, id string) error {
	delete(m.locks, id)
	return nil
}

func (m *memStore) MarkProvisioned(_ context.Context, id, publicIP, sshKeyID, gatewaySlug string, gatewaySSHPort, portRangeStart, portRangeEnd int) error {
	m.provisionedID = id
	r := m.resources[id]
	r.Status = StatusRunning
	r.PublicIP = &publicIP
	r.SSHKeyID = sshKeyID
	r.GatewaySlug = &gatewaySlug
	r.GatewaySSHPort = &gatewaySSHPort
	m.resources[id] = r
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id string) error {
	m.failedID = id
	r := m.resources[id]
	r.Status = StatusFailed
	m.resources[id] = r
	return nil
}

func (m *memStore) MarkTerminated(_ context.Context, id string) error {
	m.terminatedID = id
	r := m.resources[id]
	r.Status = StatusDeleted
	m.resources[id] = r
	return nil
}

type fakeBackend struct {
	publicIP    string
	failCreate  bool
	deletedID   string
	deletedKey  string
	deleteErr   error
}

func (b *fakeBackend) CreateServer(_ context.Context, req CreateServerRequest) (CreateServerResult, error) {
	if b.failCreate {
		return CreateServerResult{}, errNotFound
	}
	ip := b.publicIP
	return CreateServerResult{PublicIP: &ip, SSHKeyID: "key-123"}, nil
}

func (b *fakeBackend) DeleteServer(_ context.Context, externalID string) error {
	b.deletedID = externalID
	return b.deleteErr
}

func (b *fakeBackend) DeleteSSHKey(_ context.Context, sshKeyID string) error {
	b.deletedKey = sshKeyID
	return nil
}

type fakeFactory struct {
	backend *fakeBackend
}

func (f *fakeFactory) Create(_ context.Context, _ BackendType, _ string) (CloudBackend, error) {
	return f.backend, nil
}

type fakePorts struct {
	basePort int
	count    int
	err      error
}

func (p *fakePorts) Allocate(slug, contractID, internalIP string) (int, int, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	return p.basePort, p.count, nil
}

func testKey() [EncryptionKeySize]byte {
	key, _ := ParseEncryptionKey(strings.Repeat("55", EncryptionKeySize))
	return key
}

func TestProvisionTickHappyPath(t *testing.T) {
	store := newMemStore()
	key := testKey()
	encrypted, err := EncryptCredential(key, "hcloud-token")
	require.NoError(t, err)

	store.resources["res-1"] = CloudResource{
		ID: "res-1", Name: "vm-1", BackendType: Hetzner,
		CredentialsEncryptedHex: encrypted, Status: StatusProvisioning,
	}

	backend := &fakeBackend{publicIP: "203.0.113.10"}
	engine := NewEngine(store, &fakeFactory{backend: backend}, &fakePorts{basePort: 20000, count: 10}, key, "api-server-test", nil)

	require.NoError(t, engine.ProvisionTick(context.Background()))
	require.Equal(t, "res-1", store.provisionedID)
	require.Equal(t, StatusRunning, store.resources["res-1"].Status)
	require.Equal(t, "203.0.113.10", *store.resources["res-1"].PublicIP)
}

func TestProvisionTickMarksFailedOnBackendError(t *testing.T) {
	store := newMemStore()
	key := testKey()
	encrypted, _ := EncryptCredential(key, "token")
	store.resources["res-2"] = CloudResource{
		ID: "res-2", BackendType: Hetzner, CredentialsEncryptedHex: encrypted, Status: StatusProvisioning,
	}
	backend := &fakeBackend{failCreate: true}
	engine := NewEngine(store, &fakeFactory{backend: backend}, &fakePorts{basePort: 20000, count: 10}, key, "api-server-test", nil)

	require.NoError(t, engine.ProvisionTick(context.Background()))
	require.Equal(t, "res-2", store.failedID)
	require.Equal(t, StatusFailed, store.resources["res-2"].Status)
}

func TestProvisionTickSkipsLockedResource(t *testing.T) {
	store := newMemStore()
	key := testKey()
	encrypted, _ := EncryptCredential(key, "token")
	store.resources["res-3"] = CloudResource{
		ID: "res-3", BackendType: Hetzner, CredentialsEncryptedHex: encrypted, Status: StatusProvisioning,
	}
	store.locks["res-3"] = lockedRow{holder: "other-worker", expiry: time.Now().Add(5 * time.Minute)}

	backend := &fakeBackend{publicIP: "203.0.113.10"}
	engine := NewEngine(store, &fakeFactory{backend: backend}, &fakePorts{basePort: 20000, count: 10}, key, "api-server-test", nil)

	require.NoError(t, engine.ProvisionTick(context.Background()))
	require.Empty(t, store.provisionedID)
}

func TestTerminateTickDeletesPendingExternalIDWithoutBackendCall(t *testing.T) {
	store := newMemStore()
	key := testKey()
	store.resources["res-4"] = CloudResource{
		ID: "res-4", ExternalID: "pending-abc", Status: StatusDeleting,
	}
	backend := &fakeBackend{}
	engine := NewEngine(store, &fakeFactory{backend: backend}, &fakePorts{}, key, "api-server-test", nil)

	require.NoError(t, engine.TerminateTick(context.Background()))
	require.Equal(t, "res-4", store.terminatedID)
	require.Empty(t, backend.deletedID)
}

func TestTerminateTickDeletesRealResource(t *testing.T) {
	store := newMemStore()
	key := testKey()
	encrypted, _ := EncryptCredential(key, "token")
	store.resources["res-5"] = CloudResource{
		ID: "res-5", ExternalID: "srv-999", SSHKeyID: "key-1",
		BackendType: Hetzner, CredentialsEncryptedHex: encrypted, Status: StatusDeleting,
	}
	backend := &fakeBackend{}
	engine := NewEngine(store, &fakeFactory{backend: backend}, &fakePorts{}, key, "api-server-test", nil)

	require.NoError(t, engine.TerminateTick(context.Background()))
	require.Equal(t, "srv-999", backend.deletedID)
	require.Equal(t, "key-1", backend.deletedKey)
	require.Equal(t, "res-5", store.terminatedID)
}

func TestTerminateTickTreatsNotFoundAsSuccess(t *testing.T) {
	store := newMemStore()
	key := testKey()
	encrypted, _ := EncryptCredential(key, "token")
	store.resources["res-6"] = CloudResource{
		ID: "res-6", ExternalID: "srv-gone", BackendType: Hetzner,
		CredentialsEncryptedHex: encrypted, Status: StatusDeleting,
	}
	backend := &fakeBackend{deleteErr: ErrNotFound}
	engine := NewEngine(store, &fakeFactory{backend: backend}, &fakePorts{}, key, "api-server-test", nil)

	require.NoError(t, engine.TerminateTick(context.Background()))
	require.Equal(t, "res-6", store.terminatedID)
}

func TestNewLockHolderHasExpectedPrefix(t *testing.T) {
	holder := NewLockHolder()
	require.True(t, strings.HasPrefix(holder, "api-server-"))
}
