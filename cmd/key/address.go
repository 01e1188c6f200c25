package key

import (
	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address [name]",
	Short: "Print the ledger address of a stored key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKeystore()
		if err != nil {
			return err
		}
		kp, err := store.Load(keyName(args))
		if err != nil {
			return err
		}
		cmd.Println(kp.Address())
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored keys",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKeystore()
		if err != nil {
			return err
		}
		names, err := store.Names()
		if err != nil {
			return err
		}
		for _, name := range names {
			kp, err := store.Load(name)
			if err != nil {
				cmd.Printf("%-20s <%s>\n", name, err)
				continue
			}
			cmd.Printf("%-20s %s\n", name, kp.Address())
		}
		return nil
	},
}
