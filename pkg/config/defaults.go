package config

import "github.com/spf13/viper"

// SetDefaults registers every config key with viper. Keys without a useful
// default are registered empty so AutomaticEnv can resolve them on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network.name", "")
	v.SetDefault("network.timeout", DefaultTimeout)
	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.package_id", "")
	v.SetDefault("walrus.publisher_url", "")
	v.SetDefault("walrus.aggregator_url", "")
	v.SetDefault("walrus.system_object_id", "")
	v.SetDefault("storage.max_file_size", DefaultMaxFileSize)
	v.SetDefault("storage.epochs", DefaultEpochs)
	v.SetDefault("seal.enabled", true)
	v.SetDefault("seal.policy_id", "")
	v.SetDefault("seal.key_servers", "")
	v.SetDefault("signer.private_key", "")
	v.SetDefault("signer.key_file", "")
	v.SetDefault("access.insecure_bypass", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.url_path", "")
	v.SetDefault("telemetry.sample_ratio", 0.0)
	v.SetDefault("keyserver.port", 2112)
	v.SetDefault("keyserver.secret_key", "")
	v.SetDefault("keyserver.object_id", "")
	v.SetDefault("keyserver.session_ttl", "10m")
}
