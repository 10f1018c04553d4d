package cmd

import (
	"fmt"
	"time"

	"farmportal/internal/session"

	"github.com/spf13/cobra"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token now",
	Long: `Exchange the stored refresh token for a new token pair, whether or
not the current access token is close to expiry. Useful when a server
revoked the access token early.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	application, err := newApplication("")
	if err != nil {
		return err
	}
	defer application.Close()

	mgr := application.Services().Session
	if !mgr.IsAuthenticated() {
		return fmt.Errorf("%w. Run: farmportal login", session.ErrNotAuthenticated)
	}

	stop := startSpinner("Renewing session...")
	token, err := mgr.Coordinator().Renew(cmd.Context())
	stop()
	if err != nil {
		return err
	}

	if token.Expiry.IsZero() {
		outPrintf(cmd, "Session renewed\n")
		return nil
	}
	outPrintf(cmd, "Session renewed, access token expires %s\n", formatExpiryWithDirection(token.Expiry, time.Now()))
	return nil
}
