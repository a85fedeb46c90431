package gateway

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteVMConfigCreatesSiteFile(t *testing.T) {
	dir := t.TempDir()
	m := NewProxyConfigManager(filepath.Join(dir, "sites.d"))

	err := m.WriteVMConfig("slug01", "slug01.dc1.gw.decent-cloud.org", "10.0.0.5", 20000, "contract-1")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "sites.d", "slug01.conf"))
	require.NoError(t, err)
	require.Contains(t, string(data), "10.0.0.5:20000")
	require.Contains(t, string(data), "slug01.dc1.gw.decent-cloud.org")
}

func TestDeleteVMConfigRemovesSiteFile(t *testing.T) {
	dir := t.TempDir()
	m := NewProxyConfigManager(filepath.Join(dir, "sites.d"))
	require.NoError(t, m.WriteVMConfig("slug02", "slug02.dc1.gw.decent-cloud.org", "10.0.0.6", 20010, "contract-2"))

	require.NoError(t, m.DeleteVMConfig("slug02"))
	_, err := os.Stat(filepath.Join(dir, "sites.d", "slug02.conf"))
	require.True(t, os.IsNotExist(err))
}

func TestDeleteVMConfigMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	m := NewProxyConfigManager(filepath.Join(dir, "sites.d"))
	require.NoError(t, m.DeleteVMConfig("never-existed"))
}
