package key

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/pkg/config"
	"github.com/earnout-labs/dealvault/pkg/keystore"
)

var Cmd = &cobra.Command{
	Use:   "key",
	Short: "Manage ledger signing keys",
	Long: `Keys live in the keys/ directory of the data dir. The key named by
signer.key_file, or "default" when that is unset, signs uploads and
certifies decryption sessions.`,
}

func init() {
	Cmd.AddCommand(
		generateCmd,
		addressCmd,
		lsCmd,
	)
}

func openKeystore() (*keystore.Store, error) {
	cfg, err := config.Load[config.Config]()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return keystore.NewFs(cfg.Repo.KeystoreDir())
}

func keyName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return keystore.DefaultKey
}
