package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxFileSize is the largest payload, exclusive, accepted for upload.
const DefaultMaxFileSize = 10 << 20

// DefaultEpochs is the default retention period for uploads.
const DefaultEpochs = 5

// DefaultTimeout is applied to every outbound network client.
const DefaultTimeout = 30 * time.Second

type LedgerConfig struct {
	// RPCURL overrides the preset ledger node endpoint.
	RPCURL string `mapstructure:"rpc_url" toml:"rpc_url" validate:"omitempty,url"`
	// PackageID is the on-ledger package holding deal and audit records. When
	// empty, ledger queries fall back to permissive defaults.
	PackageID string `mapstructure:"package_id" toml:"package_id"`
}

type WalrusConfig struct {
	PublisherURL   string `mapstructure:"publisher_url" toml:"publisher_url" validate:"omitempty,url"`
	AggregatorURL  string `mapstructure:"aggregator_url" toml:"aggregator_url" validate:"omitempty,url"`
	SystemObjectID string `mapstructure:"system_object_id" toml:"system_object_id"`
}

type StorageConfig struct {
	MaxFileSize uint64 `mapstructure:"max_file_size" toml:"max_file_size" validate:"gt=0"`
	Epochs      uint64 `mapstructure:"epochs" toml:"epochs" validate:"gt=0"`
}

type SealConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	// PolicyID is shaped <package>::<module>.
	PolicyID string `mapstructure:"policy_id" toml:"policy_id"`
	// KeyServers is a comma separated list of key server object ids.
	KeyServers string `mapstructure:"key_servers" toml:"key_servers"`
}

func (s SealConfig) Validate() error {
	if s.PolicyID == "" {
		return nil
	}
	if _, _, err := SplitPolicyID(s.PolicyID); err != nil {
		return fmt.Errorf("invalid seal.policy_id: %w", err)
	}
	return nil
}

// KeyServerIDs splits the configured key server list, dropping blanks.
func (s SealConfig) KeyServerIDs() []string {
	var ids []string
	for _, id := range strings.Split(s.KeyServers, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// SplitPolicyID splits a <package>::<module> policy identifier.
func SplitPolicyID(policyID string) (pkg string, module string, err error) {
	pkg, module, ok := strings.Cut(policyID, "::")
	if !ok || pkg == "" || module == "" || strings.Contains(module, "::") {
		return "", "", fmt.Errorf("expected <package>::<module>, got %q", policyID)
	}
	return pkg, module, nil
}

type SignerConfig struct {
	// PrivateKey is a base64 Ed25519 seed, optionally prefixed by the scheme
	// flag byte.
	PrivateKey string `mapstructure:"private_key" toml:"private_key"`
	// KeyFile names a credential in the repo keystore, used when PrivateKey
	// is empty.
	KeyFile string `mapstructure:"key_file" toml:"key_file"`
}

type AccessConfig struct {
	// InsecureBypass grants every access check. Only for local development.
	InsecureBypass bool `mapstructure:"insecure_bypass" toml:"insecure_bypass"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled"`
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" toml:"insecure"`
	URLPath  string `mapstructure:"url_path" toml:"url_path"`
	// Headers are sent with every export, e.g. collector credentials.
	Headers map[string]string `mapstructure:"headers" toml:"headers"`
	// SampleRatio is the share of root traces kept; 0 keeps all.
	SampleRatio float64 `mapstructure:"sample_ratio" toml:"sample_ratio" validate:"gte=0,lte=1"`
}

type KeyServerConfig struct {
	Port int `mapstructure:"port" flag:"port" toml:"port" validate:"omitempty,min=1,max=65535"`
	// SecretKey is the base64 X25519 secret of this key server.
	SecretKey string `mapstructure:"secret_key" toml:"secret_key"`
	// ObjectID is the on-ledger id this server announces itself as.
	ObjectID string `mapstructure:"object_id" toml:"object_id"`
	// SessionTTL bounds how old a session certificate may be.
	SessionTTL time.Duration `mapstructure:"session_ttl" toml:"session_ttl"`
}
