package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/pkg/documents"
)

var uploadFlags struct {
	dealID   string
	periodID string
	dataType string
	uploader string
	json     bool
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Encrypt a document and store it for a deal",
	Long: wordwrap.WrapString(
		"Encrypts the file under the deal's access policy, stores the ciphertext "+
			"on the storage network and records the upload in the local journal. "+
			"The uploader defaults to the configured signer's address and must be a "+
			"participant of the deal.",
		80),
	Example: "  dealvault upload q3-revenue.pdf --deal 0xd1 --period 2026-Q3 --type revenue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		uploader := uploadFlags.uploader
		if uploader == "" {
			if a.Signer == nil {
				return fmt.Errorf("no signer configured, pass --uploader or run `dealvault key generate`")
			}
			uploader = a.Signer.Address()
		}

		stop, err := cmdutil.ShowProgress(a.Bus, cmd.ErrOrStderr(), uploadFlags.dealID)
		if err != nil {
			return err
		}
		sub, err := a.Documents.Submit(cmd.Context(), documents.Document{
			DealID:   uploadFlags.dealID,
			PeriodID: uploadFlags.periodID,
			DataType: uploadFlags.dataType,
			Uploader: uploader,
			Data:     data,
		})
		stop()
		if err != nil {
			return err
		}

		if uploadFlags.json {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(sub)
		}
		cmd.Printf("Blob ID:     %s\n", sub.Upload.BlobID)
		cmd.Printf("Size:        %s (%s plaintext)\n", humanize.IBytes(sub.Upload.Size), humanize.IBytes(uint64(len(data))))
		cmd.Printf("Commitment:  %s\n", sub.Upload.Commitment)
		cmd.Printf("Encryption:  %s\n", sub.Encryption.Commitment)
		cmd.Printf("Policy:      %s\n", sub.Encryption.PolicyID)
		cmd.Printf("Epochs:      %d to %d\n", sub.Upload.StartEpoch, sub.Upload.EndEpoch)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFlags.dealID, "deal", "", "Deal object id")
	uploadCmd.Flags().StringVar(&uploadFlags.periodID, "period", "", "Earnout period the document belongs to")
	uploadCmd.Flags().StringVar(&uploadFlags.dataType, "type", "", "Document type, e.g. revenue or ebitda")
	uploadCmd.Flags().StringVar(&uploadFlags.uploader, "uploader", "", "Uploader address (default: the signer's address)")
	uploadCmd.Flags().BoolVar(&uploadFlags.json, "json", false, "Output as JSON")
	cobra.CheckErr(uploadCmd.MarkFlagRequired("deal"))

	rootCmd.AddCommand(uploadCmd)
}
