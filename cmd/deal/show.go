package deal

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
)

var showCmd = &cobra.Command{
	Use:   "show <deal-id>",
	Short: "Show a deal's participants and terms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Ledger.GetDeal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("Deal:                      %s\n", d.ID)
		cmd.Printf("Status:                    %s\n", d.Status)
		cmd.Printf("Buyer:                     %s\n", d.Buyer)
		cmd.Printf("Seller:                    %s\n", d.Seller)
		cmd.Printf("Auditor:                   %s\n", d.Auditor)
		cmd.Printf("KPI target:                %s %s\n", humanize.Comma(int64(d.KPITarget)), d.Currency)
		cmd.Printf("Contingent consideration:  %s %s\n", humanize.Comma(int64(d.ContingentConsideration)), d.Currency)
		cmd.Printf("Overhead allocation:       %s\n", basisPoints(d.OverheadAllocation))
		cmd.Printf("Documents:                 %d\n", len(d.Blobs))
		return nil
	},
}

func basisPoints(bp uint64) string {
	return fmt.Sprintf("%d.%02d%%", bp/100, bp%100)
}
