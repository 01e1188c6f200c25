package keyserver

import (
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "keyserver",
	Short: "Run a threshold key server",
}

func init() {
	Cmd.AddCommand(
		serveCmd,
		keygenCmd,
	)
}
