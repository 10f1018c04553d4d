package cmd

import (
	"fmt"
	"os"
	"time"

	"farmportal/internal/app"
	"farmportal/internal/formatting"
	"farmportal/internal/session"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newApplication bootstraps the application from the global flags.
// Heartbeats run only for commands that pass a page.
func newApplication(page string) (*app.Application, error) {
	cfg := app.NewConfig(configPath, serverURL)
	cfg.LogLevel = logLevel
	cfg.LogFormat = logFormat
	cfg.Debug = debug
	cfg.Page = page
	cfg.DisableHeartbeat = noHeartbeat || page == ""
	return app.NewApplication(cfg)
}

// outPrintf prints to the command's output unless --quiet is set.
func outPrintf(cmd *cobra.Command, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

// newFormatter returns a formatter for an --output value.
func newFormatter(cmd *cobra.Command, output string) (formatting.Formatter, error) {
	format, err := formatting.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	return formatting.New(formatting.Options{
		Format: format,
		Quiet:  quiet,
		Writer: cmd.OutOrStdout(),
	}), nil
}

// startSpinner shows progress on interactive terminals. The returned
// function stops it.
func startSpinner(suffix string) func() {
	if quiet || !term.IsTerminal(int(os.Stdout.Fd())) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// roleNames lists the names of roles.
func roleNames(roles []session.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection describes expiresAt relative to now.
func formatExpiryWithDirection(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
