package deal

import (
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <deal-id> <address>",
	Short: "Check whether an address is a participant of a deal",
	Long: `Reports whether the address is the buyer, seller or auditor of the deal.
Every address is reported as a participant when ledger.package_id is unset;
use "dealvault access verify" for the strict check applied to downloads.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Ledger.VerifyDealParticipant(cmd.Context(), args[0], args[1]) {
			cmd.Printf("%s is a participant of deal %s\n", args[1], args[0])
			return nil
		}
		cmd.Printf("%s is not a participant of deal %s\n", args[1], args[0])
		return cmdutil.NewHandledCliError(errNotParticipant)
	},
}
