package blob

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
)

var infoCmd = &cobra.Command{
	Use:   "info <blob-id>",
	Short: "Show a blob's size and network attested commitment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.Storage.GetBlobInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("Blob ID:     %s\n", info.BlobID)
		cmd.Printf("Size:        %s (%d bytes)\n", humanize.IBytes(info.Size), info.Size)
		cmd.Printf("Commitment:  %s\n", info.Commitment)
		return nil
	},
}
