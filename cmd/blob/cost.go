package blob

import (
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
)

var costEpochs int

var costCmd = &cobra.Command{
	Use:   "cost <size>",
	Short: "Estimate what storing a payload costs",
	Long: wordwrap.WrapString(
		"Estimates storage and write costs, in the storage network's smallest token "+
			"unit, for a payload of the given size at current prices. Sizes accept a "+
			"B, K, M or G suffix. Without --epochs the configured retention period "+
			"is used.",
		80),
	Example: "  dealvault blob cost 12M --epochs 10",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := cmdutil.ParseSize(args[0])
		if err != nil {
			cmd.SilenceUsage = false
			return err
		}

		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cost, err := a.Storage.CalculateStorageCost(cmd.Context(), size, costEpochs)
		if err != nil {
			return err
		}
		epochs := a.Storage.Epochs()
		if costEpochs > 0 {
			epochs = uint64(costEpochs)
		}
		cmd.Printf("Payload:   %s for %d epochs\n", humanize.IBytes(size), epochs)
		cmd.Printf("Storage:   %s\n", humanize.Comma(int64(cost.StorageCost)))
		cmd.Printf("Write:     %s\n", humanize.Comma(int64(cost.WriteCost)))
		cmd.Printf("Total:     %s\n", humanize.Comma(int64(cost.TotalCost)))
		return nil
	},
}

func init() {
	costCmd.Flags().IntVar(&costEpochs, "epochs", 0, "Number of epochs to store for (default: storage.epochs)")
}
