package deal

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
)

var blobsIDsOnly bool

var blobsCmd = &cobra.Command{
	Use:   "blobs <deal-id>",
	Short: "List the documents registered on a deal, in upload order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if blobsIDsOnly {
			ids, err := a.Ledger.GetDealBlobIDs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				cmd.Println(id)
			}
			return nil
		}

		refs, err := a.Ledger.GetDealBlobReferences(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(refs) == 0 && !a.Ledger.Configured() {
			cmd.PrintErrln("ledger.package_id is not set, no deal records can be read")
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BLOB\tPERIOD\tTYPE\tSIZE\tUPLOADER\tUPLOADED")
		for _, r := range refs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.BlobID, r.PeriodID, r.DataType, humanize.IBytes(r.Size), r.Uploader, humanize.Time(r.UploadedAt))
		}
		return w.Flush()
	},
}

func init() {
	blobsCmd.Flags().BoolVar(&blobsIDsOnly, "ids", false, "Print only blob ids")
}
