package key

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/pkg/sui"
)

var importEnv string

var generateCmd = &cobra.Command{
	Use:   "generate [name]",
	Short: "Generate or import a signing key",
	Long: `Generates a new Ed25519 key and stores it under name ("default" if
omitted). With --import-env the base64 private key is read from the named
environment variable instead.`,
	Example: "  dealvault key generate\n  DV_KEY=... dealvault key generate ops --import-env DV_KEY",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKeystore()
		if err != nil {
			return err
		}

		var kp *sui.Keypair
		if importEnv != "" {
			kp, err = store.Import(keyName(args), os.Getenv(importEnv))
		} else {
			kp, err = store.Generate(keyName(args))
		}
		if err != nil {
			return err
		}
		cmd.Println(kp.Address())
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&importEnv, "import-env", "", "Environment variable holding a private key to import")
}
