package blob

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/pkg/model"
)

var statusCmd = &cobra.Command{
	Use:   "status <blob-id>",
	Short: "Check whether a journaled upload is still within its retention period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.Journal.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("blob %s was not uploaded from this data dir", args[0])
		}

		status, err := a.Storage.Status(cmd.Context(), model.UploadResult{
			BlobID:     entry.BlobID,
			StartEpoch: entry.StartEpoch,
			EndEpoch:   entry.EndEpoch,
		})
		if err != nil {
			return err
		}
		cmd.Printf("Blob ID:        %s\n", status.BlobID)
		cmd.Printf("Deal:           %s\n", entry.DealID)
		cmd.Printf("Current epoch:  %d\n", status.CurrentEpoch)
		cmd.Printf("End epoch:      %d\n", status.EndEpoch)
		if status.Expired {
			cmd.Println("Status:         expired")
		} else {
			cmd.Printf("Status:         stored, %d epochs remaining\n", status.RemainingEpochs)
		}
		return nil
	},
}
