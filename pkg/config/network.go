package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/earnout-labs/dealvault/pkg/presets"
)

// NetworkConfig selects a preset network. Endpoint overrides live in the
// ledger, walrus and seal sections and are applied by ToPresetConfig.
type NetworkConfig struct {
	// Name is the name of a preset network (mainnet, testnet, devnet,
	// localnet).
	Name string `mapstructure:"name" toml:"name"`
	// Timeout is applied uniformly to every outbound network client.
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout" validate:"gte=0"`
}

func (n NetworkConfig) Validate() error {
	if n.Name == "" {
		return nil
	}
	for _, name := range presets.Names() {
		if name == n.Name {
			return nil
		}
	}
	return fmt.Errorf("invalid network.name: unknown network %q", n.Name)
}

// EffectiveTimeout returns the configured timeout or DefaultTimeout.
func (n NetworkConfig) EffectiveTimeout() time.Duration {
	if n.Timeout <= 0 {
		return DefaultTimeout
	}
	return n.Timeout
}

// ToPresetConfig resolves the preset named by network.name and applies the
// endpoint overrides from the rest of the config. Any override renames the
// result to "custom".
func (c Config) ToPresetConfig() (presets.NetworkConfig, error) {
	network, err := presets.GetNetworkConfig(c.Network.Name)
	if err != nil {
		return presets.NetworkConfig{}, err
	}

	override := func(key, raw string, dst *url.URL) error {
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = *u
		network.Name = "custom"
		return nil
	}
	if err := override("ledger.rpc_url", c.Ledger.RPCURL, &network.RPCURL); err != nil {
		return presets.NetworkConfig{}, err
	}
	if err := override("walrus.publisher_url", c.Walrus.PublisherURL, &network.PublisherURL); err != nil {
		return presets.NetworkConfig{}, err
	}
	if err := override("walrus.aggregator_url", c.Walrus.AggregatorURL, &network.AggregatorURL); err != nil {
		return presets.NetworkConfig{}, err
	}
	if c.Walrus.SystemObjectID != "" {
		network.SystemObjectID = c.Walrus.SystemObjectID
		network.Name = "custom"
	}
	if ids := c.Seal.KeyServerIDs(); len(ids) > 0 {
		network.KeyServers = ids
		network.Name = "custom"
	}
	return network, nil
}
