package blob

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
)

var lsFlags struct {
	dealID string
	long   bool
	human  bool
	json   bool
}

func init() {
	lsCmd.Flags().StringVar(&lsFlags.dealID, "deal", "", "Only list uploads for this deal.")
	lsCmd.Flags().BoolVarP(&lsFlags.long, "long", "l", false, "Display detailed information about uploads.")
	lsCmd.Flags().BoolVarP(&lsFlags.human, "human", "H", false, "Display sizes and times in human-readable format (only applicable when used with --long).")
	lsCmd.Flags().BoolVar(&lsFlags.json, "json", false, "Output as newline delimited JSON.")
}

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List uploads recorded in the local journal",
	Long: wordwrap.WrapString(
		"Lists the blobs uploaded from this data dir, newest first, one on each "+
			"line. The journal is local: uploads made elsewhere are not listed.",
		80),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Journal.List(cmd.Context(), lsFlags.dealID)
		if err != nil {
			return err
		}

		if lsFlags.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}
		if !lsFlags.long {
			for _, e := range entries {
				cmd.Println(e.BlobID)
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BLOB\tDEAL\tPERIOD\tTYPE\tSIZE\tEND EPOCH\tUPLOADED")
		for _, e := range entries {
			size := fmt.Sprintf("%d", e.Size)
			uploaded := e.UploadedAt.Format("2006-01-02T15:04:05Z")
			if lsFlags.human {
				size = humanize.IBytes(e.Size)
				uploaded = humanize.Time(e.UploadedAt)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", e.BlobID, e.DealID, e.PeriodID, e.DataType, size, e.EndEpoch, uploaded)
		}
		return w.Flush()
	},
}
