package cmd

import (
	"github.com/spf13/cobra"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/pkg/documents"
	"github.com/earnout-labs/dealvault/pkg/model"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Check access to deal documents",
}

var accessVerifyRole string

var accessVerifyCmd = &cobra.Command{
	Use:   "verify <deal-id> <address>",
	Short: "Check whether an address may read a deal's documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var role *model.Role
		if accessVerifyRole != "" {
			r, err := model.ParseRole(accessVerifyRole)
			if err != nil {
				cmd.SilenceUsage = false
				return err
			}
			role = &r
		}

		a, err := cmdutil.LoadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Access.VerifyAccess(cmd.Context(), args[0], args[1], role)
		if res.Role != nil {
			cmd.Printf("Role:    %s\n", *res.Role)
		}
		if !res.HasAccess {
			cmd.Printf("Access:  denied\nReason:  %s\n", res.Reason)
			return cmdutil.NewHandledCliError(documents.ErrAccessDenied)
		}
		cmd.Println("Access:  granted")
		if res.Reason != "" {
			cmd.Printf("Note:    %s\n", res.Reason)
		}
		return nil
	},
}

func init() {
	accessVerifyCmd.Flags().StringVar(&accessVerifyRole, "role", "", "Require this role (buyer, seller, auditor)")
	accessCmd.AddCommand(accessVerifyCmd)
	rootCmd.AddCommand(accessCmd)
}
