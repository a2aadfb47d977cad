// Package config resolves the environment-variable surface documented in
// spec.md §6 into a validated Config struct. Options with a fallback chain
// (keys dir, chain RPC URL, IPFS API and gateway URLs) check the preferred
// MODSDK_-prefixed variable before the legacy names, and the first
// non-empty value wins; the remaining options are read from a single
// variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/modnet-labs/registry-scheduler/toolerrs"
)

// IPFSProvider selects the fetch strategy used by ipfsfetch.
type IPFSProvider string

const (
	IPFSProviderGateway IPFSProvider = "gateway"
	IPFSProviderKubo    IPFSProvider = "kubo"
	IPFSProviderAPI     IPFSProvider = "api"
)

// Config holds every environment-resolved option the core consumes.
type Config struct {
	KeysDir string `validate:"required"`

	ChainRPCURL string `validate:"required,uri"`

	IPFSAPIURL     string
	IPFSAPIKey     string
	IPFSGatewayURL string `validate:"required,uri"`
	IPFSProvider   IPFSProvider `validate:"required,oneof=gateway kubo api"`

	ChainIndexFile string
	ChainIndexURL  string

	CacheDir string `validate:"required"`

	RegistrarAutodetect bool

	ModuleAPIAddr          string
	ModuleAPIMaxUploadSize int64

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// Load resolves Config from the process environment, applying the fallback
// chains documented in spec.md §6, then validates it.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()

	c := &Config{
		KeysDir: firstNonEmpty(
			os.Getenv("MODSDK_KEYS_DIR"),
			os.Getenv("MODNET_KEYS_DIR"),
			filepath.Join(home, ".modnet", "keys"),
		),
		ChainRPCURL: firstNonEmpty(
			os.Getenv("MODSDK_CHAIN_RPC_URL"),
			os.Getenv("CHAIN_RPC_URL"),
			"ws://127.0.0.1:9944",
		),
		IPFSAPIURL: firstNonEmpty(
			os.Getenv("MODSDK_IPFS_API_URL"),
			os.Getenv("IPFS_API_URL"),
			os.Getenv("IPFS_BASE_URL"),
		),
		IPFSAPIKey: os.Getenv("IPFS_API_KEY"),
		IPFSGatewayURL: firstNonEmpty(
			os.Getenv("MODSDK_IPFS_GATEWAY_URL"),
			os.Getenv("IPFS_GATEWAY_URL"),
			os.Getenv("IPFS_GATEWAY"),
			"http://127.0.0.1:8080/ipfs/",
		),
		IPFSProvider: IPFSProvider(firstNonEmpty(
			os.Getenv("IPFS_PROVIDER"),
			string(IPFSProviderGateway),
		)),
		ChainIndexFile: os.Getenv("CHAIN_INDEX_FILE"),
		ChainIndexURL:  os.Getenv("CHAIN_INDEX_URL"),
		CacheDir: firstNonEmpty(
			os.Getenv("REGISTRY_CACHE_DIR"),
			filepath.Join(home, ".cache", "registry-scheduler"),
		),
		RegistrarAutodetect: os.Getenv("MCP_REGISTRAR_AUTODETECT") != "",
		ModuleAPIAddr:       os.Getenv("MODULE_API_ADDR"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:         os.Getenv("OPENAI_MODEL"),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate runs struct-tag validation over c, returning a Configuration
// category error naming every failing field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return toolerrs.New(toolerrs.Configuration, "config.Validate", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseIPFSProvider validates that raw names one of the recognized IPFS
// provider strategies.
func ParseIPFSProvider(raw string) (IPFSProvider, error) {
	switch IPFSProvider(raw) {
	case IPFSProviderGateway, IPFSProviderKubo, IPFSProviderAPI:
		return IPFSProvider(raw), nil
	default:
		return "", toolerrs.Newf(toolerrs.Configuration, "config.ParseIPFSProvider", "unsupported IPFS_PROVIDER %q", raw)
	}
}

var _ fmt.Stringer = IPFSProvider("")

func (p IPFSProvider) String() string { return string(p) }
