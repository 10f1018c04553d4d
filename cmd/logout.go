package cmd

import (
	"github.com/spf13/cobra"
)

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	Long: `Sign out of the farm portal.

The server is told to end the session and the local copy is removed even
when the server cannot be reached. Other farmportal processes using the
same session stop as well.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	application, err := newApplication("")
	if err != nil {
		return err
	}
	defer application.Close()

	mgr := application.Services().Session
	if !mgr.IsAuthenticated() {
		outPrintf(cmd, "Not logged in to %s\n", application.Settings().Server.URL)
		return nil
	}

	mgr.Logout(cmd.Context())
	outPrintf(cmd, "Logged out of %s\n", application.Settings().Server.URL)
	return nil
}
