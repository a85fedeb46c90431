package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"decent-cloud/internal/gateway"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LeaseTTL bounds how long a lock survives a crashed holder before another
// worker may steal it.
const LeaseTTL = 10 * time.Minute

// PendingBatchSize is how many rows each tick claims at most.
const PendingBatchSize = 5

// PortAllocator is the gateway port allocator this package asks for a slug
// and contiguous port window once a server has a public IP.
type PortAllocator interface {
	Allocate(slug, contractID, internalIP string) (basePort, count int, err error)
}

// Store is the persistence seam for cloud_resource rows: the pending
// queries, lease acquire/release, and the terminal-status writers.
type Store interface {
	PendingProvisioning(ctx context.Context, limit int) ([]CloudResource, error)
	PendingTermination(ctx context.Context, limit int) ([]CloudResource, error)
	AcquireLock(ctx context.Context, id, lockHolder string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, id string) error
	MarkProvisioned(ctx context.Context, id, publicIP, sshKeyID, gatewaySlug string, gatewaySSHPort, portRangeStart, portRangeEnd int) error
	MarkFailed(ctx context.Context, id string) error
	MarkTerminated(ctx context.Context, id string) error
}

// Engine runs the provision and terminate loops against a Store, a
// BackendFactory, and a PortAllocator.
type Engine struct {
	store      Store
	backends   BackendFactory
	ports      PortAllocator
	key        [EncryptionKeySize]byte
	lockHolder string
	log        *logrus.Logger
}

// NewEngine constructs an Engine. lockHolder should be unique per process,
// e.g. "api-server-<uuid>".
func NewEngine(store Store, backends BackendFactory, ports PortAllocator, key [EncryptionKeySize]byte, lockHolder string, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{store: store, backends: backends, ports: ports, key: key, lockHolder: lockHolder, log: log}
}

// NewLockHolder builds the per-process lock identity the spec names:
// "api-server-<uuid>".
func NewLockHolder() string {
	return fmt.Sprintf("api-server-%s", uuid.NewString())
}

// ProvisionTick claims up to PendingBatchSize provisioning rows and attempts
// to provision each.
func (e *Engine) ProvisionTick(ctx context.Context) error {
	pending, err := e.store.PendingProvisioning(ctx, PendingBatchSize)
	if err != nil {
		return fmt.Errorf("provisioning: list pending: %w", err)
	}
	for _, r := range pending {
		e.provisionOne(ctx, r)
	}
	return nil
}

func (e *Engine) provisionOne(ctx context.Context, r CloudResource) {
	acquired, err := e.store.AcquireLock(ctx, r.ID, e.lockHolder, time.Now(), LeaseTTL)
	if err != nil {
		e.log.WithError(err).WithField("resource_id", r.ID).Error("acquire lock failed")
		return
	}
	if !acquired {
		e.log.WithField("resource_id", r.ID).Debug("could not acquire lock, skipping")
		return
	}
	defer func() {
		if err := e.store.ReleaseLock(ctx, r.ID); err != nil {
			e.log.WithError(err).WithField("resource_id", r.ID).Error("release lock failed")
		}
	}()

	if err := e.doProvision(ctx, r); err != nil {
		e.log.WithError(err).WithField("resource_id", r.ID).Error("provision failed")
		if markErr := e.store.MarkFailed(ctx, r.ID); markErr != nil {
			e.log.WithError(markErr).WithField("resource_id", r.ID).Error("mark failed failed")
		}
	}
}

func (e *Engine) doProvision(ctx context.Context, r CloudResource) error {
	credentials, err := DecryptCredential(e.key, r.CredentialsEncryptedHex)
	if err != nil {
		return fmt.Errorf("decrypt credentials: %w", err)
	}
	backend, err := e.backends.Create(ctx, r.BackendType, credentials)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	result, err := backend.CreateServer(ctx, CreateServerRequest{
		Name: r.Name, ServerType: r.ServerType, Location: r.Location, Image: r.Image, SSHPubkey: r.SSHPubkey,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if result.PublicIP == nil || *result.PublicIP == "" {
		return fmt.Errorf("server has no public ip")
	}

	slug, err := gateway.GenerateSlug()
	if err != nil {
		return fmt.Errorf("generate slug: %w", err)
	}
	basePort, count, err := e.ports.Allocate(slug, r.ID, *result.PublicIP)
	if err != nil {
		return fmt.Errorf("allocate gateway ports: %w", err)
	}
	sshPort := basePort
	rangeStart := basePort + 1
	rangeEnd := basePort + count - 1

	if err := e.store.MarkProvisioned(ctx, r.ID, *result.PublicIP, result.SSHKeyID, slug, sshPort, rangeStart, rangeEnd); err != nil {
		return fmt.Errorf("persist provisioned state: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"resource_id": r.ID, "public_ip": *result.PublicIP, "gateway_slug": slug,
	}).Info("provisioned cloud resource")
	return nil
}

// TerminateTick claims up to PendingBatchSize deleting rows and attempts to
// terminate each.
func (e *Engine) TerminateTick(ctx context.Context) error {
	pending, err := e.store.PendingTermination(ctx, PendingBatchSize)
	if err != nil {
		return fmt.Errorf("provisioning: list pending termination: %w", err)
	}
	for _, r := range pending {
		e.terminateOne(ctx, r)
	}
	return nil
}

func (e *Engine) terminateOne(ctx context.Context, r CloudResource) {
	acquired, err := e.store.AcquireLock(ctx, r.ID, e.lockHolder, time.Now(), LeaseTTL)
	if err != nil {
		e.log.WithError(err).WithField("resource_id", r.ID).Error("acquire lock failed")
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := e.store.ReleaseLock(ctx, r.ID); err != nil {
			e.log.WithError(err).WithField("resource_id", r.ID).Error("release lock failed")
		}
	}()

	if err := e.doTerminate(ctx, r); err != nil {
		e.log.WithError(err).WithField("resource_id", r.ID).Error("terminate failed")
	}
}

func (e *Engine) doTerminate(ctx context.Context, r CloudResource) error {
	if strings.HasPrefix(r.ExternalID, "pending-") {
		return e.store.MarkTerminated(ctx, r.ID)
	}

	credentials, err := DecryptCredential(e.key, r.CredentialsEncryptedHex)
	if err != nil {
		return fmt.Errorf("decrypt credentials: %w", err)
	}
	backend, err := e.backends.Create(ctx, r.BackendType, credentials)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	if err := backend.DeleteServer(ctx, r.ExternalID); err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete server: %w", err)
	}

	if r.SSHKeyID != "" {
		if err := backend.DeleteSSHKey(ctx, r.SSHKeyID); err != nil && !IsNotFound(err) {
			e.log.WithError(err).WithField("resource_id", r.ID).Warn("delete ssh key failed")
		}
	}

	return e.store.MarkTerminated(ctx, r.ID)
}

// Run starts the provision and terminate loops on independent tickers,
// until ctx is cancelled. Call only when CLOUD_PROVISIONING_ENABLED is set.
func (e *Engine) Run(ctx context.Context, provisionInterval, terminateInterval time.Duration) {
	go e.loop(ctx, provisionInterval, e.ProvisionTick, "provision")
	go e.loop(ctx, terminateInterval, e.TerminateTick, "terminate")
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, tick func(context.Context) error, name string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				e.log.WithError(err).WithField("loop", name).Error("tick failed")
			}
		}
	}
}
