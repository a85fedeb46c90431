package gateway

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSlugShapeAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		slug, err := GenerateSlug()
		require.NoError(t, err)
		require.Len(t, slug, slugLength)
		for _, r := range slug {
			require.True(t, (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
		}
		seen[slug] = true
	}
	require.Greater(t, len(seen), 90)
}

func newTestAllocator(t *testing.T) *PortAllocator {
	dir := t.TempDir()
	alloc, err := NewPortAllocator(filepath.Join(dir, "allocations.json"), 20000, 20099, 10)
	require.NoError(t, err)
	return alloc
}

func TestAllocateFirstWindow(t *testing.T) {
	alloc := newTestAllocator(t)
	base, count, err := alloc.Allocate("abc123", "contract-1", "10.0.0.5")
	require.NoError(t, err)
	require.Equal(t, 20000, base)
	require.Equal(t, 10, count)
}

func TestAllocateSkipsOverlappingWindow(t *testing.T) {
	alloc := newTestAllocator(t)
	_, _, err := alloc.Allocate("slug1", "contract-1", "10.0.0.5")
	require.NoError(t, err)

	base, _, err := alloc.Allocate("slug2", "contract-2", "10.0.0.6")
	require.NoError(t, err)
	require.Equal(t, 20010, base)
}

func TestAllocateExhaustedRange(t *testing.T) {
	dir := t.TempDir()
	alloc, err := NewPortAllocator(filepath.Join(dir, "allocations.json"), 20000, 20009, 10)
	require.NoError(t, err)

	_, _, err = alloc.Allocate("slug1", "contract-1", "10.0.0.5")
	require.NoError(t, err)

	_, _, err = alloc.Allocate("slug2", "contract-2", "10.0.0.6")
	require.ErrorIs(t, err, ErrExhaustedRange)
}

func TestFreeAndReallocate(t *testing.T) {
	alloc := newTestAllocator(t)
	_, _, err := alloc.Allocate("slug1", "contract-1", "10.0.0.5")
	require.NoError(t, err)

	freed, err := alloc.Free("slug1")
	require.NoError(t, err)
	require.Equal(t, 20000, freed.BasePort)

	base, _, err := alloc.Allocate("slug2", "contract-2", "10.0.0.6")
	require.NoError(t, err)
	require.Equal(t, 20000, base)
}

func TestFreeUnknownSlug(t *testing.T) {
	alloc := newTestAllocator(t)
	_, err := alloc.Free("nope99")
	require.Error(t, err)
}

func TestFindBySlugAndContract(t *testing.T) {
	alloc := newTestAllocator(t)
	_, _, err := alloc.Allocate("slug1", "contract-7", "10.0.0.5")
	require.NoError(t, err)

	a, ok := alloc.FindBySlug("slug1")
	require.True(t, ok)
	require.Equal(t, "contract-7", a.ContractID)

	slug, ok := alloc.FindByContract("contract-7")
	require.True(t, ok)
	require.Equal(t, "slug1", slug)

	_, ok = alloc.FindByContract("missing")
	require.False(t, ok)
}

func TestPersistenceSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allocations.json")

	alloc, err := NewPortAllocator(path, 20000, 20099, 10)
	require.NoError(t, err)
	_, _, err = alloc.Allocate("slug1", "contract-1", "10.0.0.5")
	require.NoError(t, err)

	reloaded, err := NewPortAllocator(path, 20000, 20099, 10)
	require.NoError(t, err)
	a, ok := reloaded.FindBySlug("slug1")
	require.True(t, ok)
	require.Equal(t, 20000, a.BasePort)
}

func TestAllMatchesAllocations(t *testing.T) {
	alloc := newTestAllocator(t)
	_, _, err := alloc.Allocate("slug1", "contract-1", "10.0.0.5")
	require.NoError(t, err)
	_, _, err = alloc.Allocate("slug2", "contract-2", "10.0.0.6")
	require.NoError(t, err)

	all := alloc.All()
	require.Len(t, all, 2)
}
