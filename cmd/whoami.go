package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var whoamiOutput string

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Long: `Ask the server who the stored session belongs to and refresh the
cached profile. An expired access token is renewed first.`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

func init() {
	whoamiCmd.Flags().StringVarP(&whoamiOutput, "output", "o", "", "Output format (table, json, yaml)")
}

func runWhoami(cmd *cobra.Command, args []string) error {
	application, err := newApplication("")
	if err != nil {
		return err
	}
	defer application.Close()

	identity, err := application.Services().Session.Restore(cmd.Context())
	if err != nil {
		if sessionEnded(err) {
			return fmt.Errorf("%w. Run: farmportal login", err)
		}
		return err
	}

	if whoamiOutput != "" {
		formatter, err := newFormatter(cmd, whoamiOutput)
		if err != nil {
			return err
		}
		return formatter.FormatData(identity)
	}

	fmt.Fprintln(cmd.OutOrStdout(), identity.Email)
	if identity.Name != "" {
		outPrintf(cmd, "  Name:        %s\n", identity.Name)
	}
	if len(identity.Roles) > 0 {
		outPrintf(cmd, "  Roles:       %s\n", strings.Join(roleNames(identity.Roles), ", "))
	}
	if len(identity.Permissions) > 0 {
		outPrintf(cmd, "  Permissions: %s\n", strings.Join(identity.Permissions, ", "))
	}
	return nil
}
