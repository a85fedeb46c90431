package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CLOUD_PROVISIONING_ENABLED", "")
	t.Setenv("DC_ENV", "")
	t.Setenv("WALLET_PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, "8081", cfg.WalletPort)
	require.Equal(t, "8080", cfg.APIPort)
	require.Equal(t, "decent-cloud.org", cfg.CFDomain)
	require.Equal(t, "gw", cfg.CFGWPrefix)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("DC_ENV", "production")
	t.Setenv("WALLET_PORT", "9090")
	t.Setenv("CF_DOMAIN", "example.org")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Env)
	require.Equal(t, "9090", cfg.WalletPort)
	require.Equal(t, "example.org", cfg.CFDomain)
}

func TestLoadRejectsMalformedEncryptionKeyWhenProvisioningEnabled(t *testing.T) {
	t.Setenv("CLOUD_PROVISIONING_ENABLED", "true")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "not-hex")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAcceptsValidEncryptionKeyWhenProvisioningEnabled(t *testing.T) {
	t.Setenv("CLOUD_PROVISIONING_ENABLED", "true")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.CloudProvisioningEnabled)
}
