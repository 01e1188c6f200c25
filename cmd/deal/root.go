package deal

import (
	"errors"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "deal",
	Short: "Query deal records on the ledger",
}

func init() {
	Cmd.AddCommand(
		showCmd,
		blobsCmd,
		auditsCmd,
		verifyCmd,
	)
}

var errNotParticipant = errors.New("not a participant")
