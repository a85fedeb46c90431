package gateway

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProxyConfigManager writes and removes the per-VM reverse-proxy site files
// that route https://{subdomain} to a provisioned VM's internal address.
// The site file must exist before the gateway announces a contract ready,
// and must be removed before its port allocation is freed, so a restart
// mid-teardown never leaves traffic routed to a freed port window.
type ProxyConfigManager struct {
	sitesDir string
}

// NewProxyConfigManager targets sitesDir, a directory the reverse proxy
// watches for included site files (e.g. Caddy's sites.d).
func NewProxyConfigManager(sitesDir string) *ProxyConfigManager {
	return &ProxyConfigManager{sitesDir: sitesDir}
}

func (m *ProxyConfigManager) sitePath(slug string) string {
	return filepath.Join(m.sitesDir, fmt.Sprintf("%s.conf", slug))
}

// WriteVMConfig installs the site file routing subdomain to internalIP's
// SSH port (basePort) and leaves the remaining ports of the window for raw
// TCP/UDP forwarding handled by the NAT layer rather than the proxy.
func (m *ProxyConfigManager) WriteVMConfig(slug, subdomain, internalIP string, basePort int, contractID string) error {
	if err := os.MkdirAll(m.sitesDir, 0o755); err != nil {
		return fmt.Errorf("gateway: create sites dir: %w", err)
	}
	contents := fmt.Sprintf(
		"# contract %s\n%s {\n\treverse_proxy %s:%d\n}\n",
		contractID, subdomain, internalIP, basePort,
	)
	path := m.sitePath(slug)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("gateway: write site config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("gateway: install site config: %w", err)
	}
	return nil
}

// DeleteVMConfig removes slug's site file; a missing file is not an error,
// since cleanup must be idempotent against crash-retried teardown.
func (m *ProxyConfigManager) DeleteVMConfig(slug string) error {
	if err := os.Remove(m.sitePath(slug)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("gateway: remove site config: %w", err)
	}
	return nil
}
