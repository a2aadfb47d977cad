package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnet-labs/registry-scheduler/config"
	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"MODSDK_KEYS_DIR", "MODNET_KEYS_DIR",
		"MODSDK_CHAIN_RPC_URL", "CHAIN_RPC_URL",
		"MODSDK_IPFS_API_URL", "IPFS_API_URL", "IPFS_BASE_URL", "IPFS_API_KEY",
		"MODSDK_IPFS_GATEWAY_URL", "IPFS_GATEWAY_URL", "IPFS_GATEWAY",
		"IPFS_PROVIDER", "CHAIN_INDEX_FILE", "CHAIN_INDEX_URL",
		"REGISTRY_CACHE_DIR", "MCP_REGISTRAR_AUTODETECT",
		"MODULE_API_ADDR", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		require.NoError(t, os.Unsetenv(v))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9944", c.ChainRPCURL)
	assert.Equal(t, "http://127.0.0.1:8080/ipfs/", c.IPFSGatewayURL)
	assert.Equal(t, config.IPFSProviderGateway, c.IPFSProvider)
	assert.Contains(t, c.CacheDir, "registry-scheduler")
	assert.Contains(t, c.KeysDir, ".modnet")
}

func TestLoadPrefersModsdkOverLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAIN_RPC_URL", "ws://legacy:9944")
	t.Setenv("MODSDK_CHAIN_RPC_URL", "ws://preferred:9944")

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://preferred:9944", c.ChainRPCURL)
}

func TestLoadFallsBackToLegacyWhenPreferredAbsent(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPFS_GATEWAY", "http://legacy-gateway/ipfs/")

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://legacy-gateway/ipfs/", c.IPFSGatewayURL)
}

func TestLoadRejectsUnsupportedProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("IPFS_PROVIDER", "ftp")

	_, err := config.Load()
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Configuration))
}

func TestParseIPFSProvider(t *testing.T) {
	p, err := config.ParseIPFSProvider("kubo")
	require.NoError(t, err)
	assert.Equal(t, config.IPFSProviderKubo, p)

	_, err = config.ParseIPFSProvider("bogus")
	require.Error(t, err)
	assert.True(t, toolerrs.Is(err, toolerrs.Configuration))
}
