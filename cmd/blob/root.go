package blob

import (
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "blob",
	Short: "Inspect stored blobs",
}

func init() {
	Cmd.AddCommand(
		infoCmd,
		costCmd,
		statusCmd,
		lsCmd,
	)
}
