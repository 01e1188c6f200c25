package keyserver

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/pkg/seal"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key server secret",
	Long: `Prints a new X25519 secret for keyserver.secret_key and the public key to
register on the ledger.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, public, err := seal.GenerateServerKey()
		if err != nil {
			return err
		}
		cmd.Printf("secret_key: %s\n", base64.StdEncoding.EncodeToString(secret))
		cmd.Printf("public_key: 0x%s\n", hex.EncodeToString(public))
		return nil
	},
}
