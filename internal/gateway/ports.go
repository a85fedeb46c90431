// Package gateway allocates the public port windows, DNS records, and NAT
// rules that expose a provisioned VM at {slug}.{dc_id}.{gw_prefix}.{domain}.
package gateway

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

const slugCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
const slugLength = 6

var ErrExhaustedRange = errors.New("gateway: no free contiguous port window in range")

// GenerateSlug draws a random 6-character [a-z0-9] slug. The namespace
// (36^6 ~ 2.1e9) makes collisions rare enough that callers retry on a
// uniqueness conflict rather than check up front.
func GenerateSlug() (string, error) {
	buf := make([]byte, slugLength)
	idx := make([]byte, slugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("gateway: generate slug: %w", err)
	}
	for i, b := range buf {
		idx[i] = slugCharset[int(b)%len(slugCharset)]
	}
	return string(idx), nil
}

// Allocation is one persisted slug -> port window binding.
type Allocation struct {
	Slug       string `json:"slug"`
	ContractID string `json:"contract_id"`
	BasePort   int    `json:"base_port"`
	Count      int    `json:"count"`
	InternalIP string `json:"internal_ip,omitempty"`
}

// PortAllocator is the single persistent slug -> allocation map described in
// spec §4.13, backed by a JSON file on disk. All methods are safe for
// concurrent use.
type PortAllocator struct {
	mu           sync.Mutex
	path         string
	rangeStart   int
	rangeEnd     int
	portsPerVM   int
	allocations  map[string]Allocation
}

// NewPortAllocator loads (or initializes) the persisted allocation map at
// path.
func NewPortAllocator(path string, rangeStart, rangeEnd, portsPerVM int) (*PortAllocator, error) {
	p := &PortAllocator{
		path: path, rangeStart: rangeStart, rangeEnd: rangeEnd, portsPerVM: portsPerVM,
		allocations: map[string]Allocation{},
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PortAllocator) load() error {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("gateway: read allocations: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var allocations map[string]Allocation
	if err := json.Unmarshal(data, &allocations); err != nil {
		return fmt.Errorf("gateway: parse allocations: %w", err)
	}
	p.allocations = allocations
	return nil
}

func (p *PortAllocator) persist() error {
	data, err := json.MarshalIndent(p.allocations, "", "  ")
	if err != nil {
		return fmt.Errorf("gateway: marshal allocations: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("gateway: write allocations: %w", err)
	}
	return nil
}

// Allocate scans from rangeStart for a free contiguous window of
// portsPerVM ports and binds it to slug.
func (p *PortAllocator) Allocate(slug, contractID, internalIP string) (basePort, count int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for base := p.rangeStart; base+p.portsPerVM-1 <= p.rangeEnd; base += p.portsPerVM {
		if !p.overlaps(base, p.portsPerVM) {
			alloc := Allocation{Slug: slug, ContractID: contractID, BasePort: base, Count: p.portsPerVM, InternalIP: internalIP}
			p.allocations[slug] = alloc
			if err := p.persist(); err != nil {
				delete(p.allocations, slug)
				return 0, 0, err
			}
			return base, p.portsPerVM, nil
		}
	}
	return 0, 0, ErrExhaustedRange
}

func (p *PortAllocator) overlaps(base, count int) bool {
	for _, a := range p.allocations {
		if base < a.BasePort+a.Count && a.BasePort < base+count {
			return true
		}
	}
	return false
}

// Free removes slug's allocation and returns the ports it held.
func (p *PortAllocator) Free(slug string) (Allocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	alloc, ok := p.allocations[slug]
	if !ok {
		return Allocation{}, fmt.Errorf("gateway: slug %q: no allocation", slug)
	}
	delete(p.allocations, slug)
	if err := p.persist(); err != nil {
		p.allocations[slug] = alloc
		return Allocation{}, err
	}
	return alloc, nil
}

// FindBySlug looks up slug's current allocation.
func (p *PortAllocator) FindBySlug(slug string) (Allocation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.allocations[slug]
	return a, ok
}

// FindByContract returns the slug bound to contractID, if any.
func (p *PortAllocator) FindByContract(contractID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for slug, a := range p.allocations {
		if a.ContractID == contractID {
			return slug, true
		}
	}
	return "", false
}

// All returns a snapshot of every persisted allocation, for crash-recovery
// NAT rule reinstallation on startup.
func (p *PortAllocator) All() []Allocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Allocation, 0, len(p.allocations))
	for _, a := range p.allocations {
		out = append(out, a)
	}
	return out
}
