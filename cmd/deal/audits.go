package deal

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/pkg/model"
)

var auditsBlobID string

var auditsCmd = &cobra.Command{
	Use:   "audits <deal-id>",
	Short: "List audit records of a deal's documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var records []model.AuditRecord
		if auditsBlobID != "" {
			rec, err := a.Ledger.GetBlobAuditRecord(cmd.Context(), args[0], auditsBlobID)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no audit record for blob %s", auditsBlobID)
			}
			records = append(records, *rec)
		} else {
			records, err = a.Ledger.GetDealAuditRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORD\tBLOB\tPERIOD\tUPLOADED\tAUDITED\tAUDITOR")
		for _, r := range records {
			audited := "no"
			if r.Audited {
				audited = "yes"
				if r.AuditedAt != nil {
					audited = r.AuditedAt.UTC().Format(time.DateTime)
				}
			}
			auditor := "-"
			if r.Auditor != nil {
				auditor = *r.Auditor
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.BlobID, r.PeriodID, r.UploadedAt.UTC().Format(time.DateTime), audited, auditor)
		}
		return w.Flush()
	},
}

func init() {
	auditsCmd.Flags().StringVar(&auditsBlobID, "blob", "", "Only show the record for this blob")
}
