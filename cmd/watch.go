package cmd

import (
	"fmt"

	"farmportal/internal/app"
	"farmportal/internal/heartbeat"
	"farmportal/internal/session"

	"github.com/spf13/cobra"
)

var watchPage string

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session alive in the foreground",
	Long: `Keep the stored session alive until interrupted.

While running, the access token is renewed ahead of expiry, the server
receives an activity heartbeat naming the current page, and a logout from
any other farmportal process ends the watch. Stopping the watch with
Ctrl+C keeps the session.

Examples:
  farmportal watch
  farmportal watch --page /active`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchPage, "page", "/", "Portal route reported in heartbeats")
}

func runWatch(cmd *cobra.Command, args []string) error {
	application, err := newApplication(heartbeat.PageName(watchPage))
	if err != nil {
		return err
	}
	defer application.Close()

	services := application.Services()
	err = app.RunWatch(cmd.Context(), services, func(identity *session.Identity) {
		outPrintf(cmd, "Watching session of %s on %s\n", identity.Email, application.Settings().Server.URL)
		if services.Heartbeat != nil {
			outPrintf(cmd, "  Heartbeat: %s every %s\n", services.Heartbeat.Page(), application.Settings().Heartbeat.Interval)
		}
	})
	if err != nil {
		if sessionEnded(err) {
			return fmt.Errorf("%w. Run: farmportal login", err)
		}
		return err
	}
	return nil
}
