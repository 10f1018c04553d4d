package cmd

import (
	"errors"
	"os"

	"farmportal/internal/app"
	"farmportal/internal/portal"
	"farmportal/internal/session"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates there is no usable session: never logged
	// in, logged out, or a session that could not be renewed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the portal refused the login.
	ExitCodeAuthFailed = 3
)

// Global flags shared by every command.
var (
	serverURL   string
	configPath  string
	logLevel    string
	logFormat   string
	debug       bool
	quiet       bool
	noHeartbeat bool
)

// rootCmd represents the base command for the farmportal application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "farmportal",
	Short: "Stay signed in to the farm portal from the command line",
	Long: `farmportal keeps an authenticated session with a farm portal server.

It logs in with email and password, stores the session under the
configuration directory, renews the short-lived access token before it
expires and shares the session with every other farmportal process on
this machine.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
	app.UserAgent = "farmportal/" + v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "farmportal version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	if errors.Is(err, session.ErrNotAuthenticated) {
		return ExitCodeAuthRequired
	}

	var expired *session.SessionExpiredError
	if errors.As(err, &expired) {
		return ExitCodeAuthRequired
	}

	var ended *app.SessionEndedError
	if errors.As(err, &ended) {
		return ExitCodeAuthRequired
	}

	if session.IsRenewalRejected(err) || portal.IsUnauthorized(err) {
		return ExitCodeAuthRequired
	}

	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(watchCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", "", "Farm portal URL (env: FARMPORTAL_SERVER)")
	flags.StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/farmportal)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	flags.BoolVar(&noHeartbeat, "no-heartbeat", false, "Do not send activity heartbeats")
}
