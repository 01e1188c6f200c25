package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/pkg/model"
)

var downloadFlags struct {
	as     string
	role   string
	output string
}

var downloadCmd = &cobra.Command{
	Use:   "download <deal-id> <blob-id>",
	Short: "Retrieve and decrypt a deal document",
	Long: `Checks that the requester may read the deal's documents, downloads the
blob and decrypts it with key shares released by the key servers. Output goes
to stdout unless --output is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, blobID := args[0], args[1]

		var role *model.Role
		if downloadFlags.role != "" {
			r, err := model.ParseRole(downloadFlags.role)
			if err != nil {
				cmd.SilenceUsage = false
				return err
			}
			role = &r
		}

		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		requester := downloadFlags.as
		if requester == "" {
			if a.Signer == nil {
				return fmt.Errorf("no signer configured, pass --as <address>")
			}
			requester = a.Signer.Address()
		}

		stop, err := cmdutil.ShowProgress(a.Bus, cmd.ErrOrStderr(), dealID)
		if err != nil {
			return err
		}
		data, err := a.Documents.Retrieve(cmd.Context(), dealID, blobID, requester, role)
		stop()
		if err != nil {
			return err
		}

		if downloadFlags.output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(downloadFlags.output, data, 0600); err != nil {
			return fmt.Errorf("writing %s: %w", downloadFlags.output, err)
		}
		cmd.PrintErrf("Wrote %s to %s\n", humanize.IBytes(uint64(len(data))), downloadFlags.output)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadFlags.as, "as", "", "Address requesting access (default: the signer's address)")
	downloadCmd.Flags().StringVar(&downloadFlags.role, "role", "", "Require the requester to hold this role (buyer, seller, auditor)")
	downloadCmd.Flags().StringVarP(&downloadFlags.output, "output", "o", "", "File to write the plaintext to")

	rootCmd.AddCommand(downloadCmd)
}
