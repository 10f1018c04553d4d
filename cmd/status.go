package cmd

import (
	"context"
	"errors"
	"strings"
	"time"

	"farmportal/internal/portal"
	"farmportal/internal/session"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// DefaultStatusCheckTimeout bounds the server check of status --verify.
const DefaultStatusCheckTimeout = 10 * time.Second

// Status-specific flags
var (
	statusOutput string
	statusVerify bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long: `Show the session stored for the configured server: who is logged
in, when the access token expires and whether it can be renewed.

With --verify the session is checked against the server, renewing it
first when needed.

Examples:
  farmportal status
  farmportal status --verify
  farmportal status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "Output format (table, json, yaml)")
	statusCmd.Flags().BoolVar(&statusVerify, "verify", false, "Check the session with the server")
}

// sessionStatus is the machine-readable form of status.
type sessionStatus struct {
	Server        string            `json:"server" yaml:"server"`
	Authenticated bool              `json:"authenticated" yaml:"authenticated"`
	User          *session.Identity `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Renewable     bool              `json:"renewable" yaml:"renewable"`
	Verified      *bool             `json:"verified,omitempty" yaml:"verified,omitempty"`
	VerifyError   string            `json:"verifyError,omitempty" yaml:"verifyError,omitempty"`
	SessionFile   string            `json:"sessionFile" yaml:"sessionFile"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := newApplication("")
	if err != nil {
		return err
	}
	defer application.Close()

	services := application.Services()
	status := sessionStatus{
		Server:      application.Settings().Server.URL,
		SessionFile: services.Store.Path(),
	}

	if statusVerify && services.Session.IsAuthenticated() {
		ctx, cancel := context.WithTimeout(cmd.Context(), DefaultStatusCheckTimeout)
		identity, verifyErr := services.Session.Restore(ctx)
		cancel()

		verified := verifyErr == nil
		status.Verified = &verified
		if verifyErr != nil {
			status.VerifyError = verifyErr.Error()
		} else {
			status.User = identity
		}
	}

	fillLocalStatus(&status, services.Session)

	if statusOutput != "" {
		formatter, err := newFormatter(cmd, statusOutput)
		if err != nil {
			return err
		}
		return formatter.FormatData(status)
	}

	printStatus(cmd, status)
	return nil
}

// fillLocalStatus adds what the store knows about the session.
func fillLocalStatus(status *sessionStatus, mgr *session.Manager) {
	token, err := mgr.Token()
	if err != nil || token == nil || token.AccessToken == "" {
		return
	}
	status.Authenticated = true
	status.Renewable = token.RefreshToken != ""
	if exp, ok := session.ExpiresAt(token.AccessToken); ok {
		status.ExpiresAt = &exp
	}
	if status.User == nil {
		if identity, err := mgr.Identity(); err == nil {
			status.User = identity
		}
	}
}

func printStatus(cmd *cobra.Command, status sessionStatus) {
	outPrintf(cmd, "Farm Portal\n")
	outPrintf(cmd, "  Server:    %s\n", status.Server)

	if status.Verified != nil && !*status.Verified {
		printVerifyFailure(cmd, status)
		return
	}

	if !status.Authenticated {
		outPrintf(cmd, "  Status:    %s\n", text.FgYellow.Sprint("Not logged in"))
		outPrintf(cmd, "             Run: farmportal login\n")
		return
	}

	state := "Logged in"
	if status.Verified != nil {
		state = "Logged in (verified)"
	}
	outPrintf(cmd, "  Status:    %s\n", text.FgGreen.Sprint(state))
	if status.User != nil {
		outPrintf(cmd, "  User:      %s\n", status.User.Email)
		if len(status.User.Roles) > 0 {
			outPrintf(cmd, "  Roles:     %s\n", strings.Join(roleNames(status.User.Roles), ", "))
		}
	}
	if status.ExpiresAt != nil {
		outPrintf(cmd, "  Expires:   %s\n", formatExpiryWithDirection(*status.ExpiresAt, time.Now()))
	}
	if status.Renewable {
		outPrintf(cmd, "  Renewal:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		outPrintf(cmd, "  Renewal:   %s\n", text.FgYellow.Sprint("Not available (login required on expiry)"))
	}
	outPrintf(cmd, "  Session:   %s\n", status.SessionFile)
}

func printVerifyFailure(cmd *cobra.Command, status sessionStatus) {
	var reason string
	if status.Authenticated {
		reason = text.FgRed.Sprint("Server unreachable")
	} else {
		reason = text.FgYellow.Sprint("Session ended")
	}
	outPrintf(cmd, "  Status:    %s\n", reason)
	outPrintf(cmd, "             %s\n", status.VerifyError)
	if !status.Authenticated {
		outPrintf(cmd, "             Run: farmportal login\n")
	}
}

// sessionEnded reports whether err means the stored session is gone.
func sessionEnded(err error) bool {
	var expired *session.SessionExpiredError
	return errors.As(err, &expired) || portal.IsUnauthorized(err) || errors.Is(err, session.ErrNotAuthenticated)
}
