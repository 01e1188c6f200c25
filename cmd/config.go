package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// secretKeys are shown only as set or unset.
var secretKeys = map[string]bool{
	"signer.private_key":   true,
	"keyserver.secret_key": true,
}

var configKeys = []string{
	"repo.data_dir",
	"network.name",
	"network.timeout",
	"ledger.rpc_url",
	"ledger.package_id",
	"walrus.publisher_url",
	"walrus.aggregator_url",
	"walrus.system_object_id",
	"storage.max_file_size",
	"storage.epochs",
	"seal.enabled",
	"seal.policy_id",
	"seal.key_servers",
	"signer.private_key",
	"signer.key_file",
	"access.insecure_bypass",
	"telemetry.enabled",
	"telemetry.endpoint",
	"telemetry.sample_ratio",
	"keyserver.port",
	"keyserver.object_id",
	"keyserver.secret_key",
	"keyserver.session_ttl",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: wordwrap.WrapString(
		"Display every configuration key with its resolved value and where the "+
			"value came from. Environment variables use the DEALVAULT_ prefix with "+
			"dots replaced by underscores, e.g. DEALVAULT_SEAL_POLICY_ID.",
		80),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if f := viper.ConfigFileUsed(); f != "" {
			cmd.Printf("Config file: %s\n", f)
		}
		cmd.Println(strings.Repeat("-", 72))
		for _, key := range configKeys {
			var val any = viper.Get(key)
			if secretKeys[key] {
				val = "<unset>"
				if viper.GetString(key) != "" {
					val = "<set>"
				}
			}
			cmd.Println(fmt.Sprintf("  %-25s = %-30v (%s)", key, val, configSource(key)))
		}
		return nil
	},
}

// configSource determines where a viper key's value came from.
// Priority: flag > env > config file > default.
func configSource(key string) string {
	envVar := "DEALVAULT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	switch {
	case flagChanged(key):
		return "flag"
	case os.Getenv(envVar) != "":
		return "env " + envVar
	case viper.ConfigFileUsed() != "" && viper.InConfig(key):
		return "config file"
	}
	return "default"
}

var flagKeys = map[string]string{
	"repo.data_dir":   "data-dir",
	"network.name":    "network",
	"network.timeout": "timeout",
}

func flagChanged(key string) bool {
	name, ok := flagKeys[key]
	if !ok {
		return false
	}
	f := rootCmd.PersistentFlags().Lookup(name)
	return f != nil && f.Changed
}

func init() {
	rootCmd.AddCommand(configCmd)
}
