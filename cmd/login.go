package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"farmportal/internal/portal"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Login-specific flags
var (
	loginEmail         string
	loginPasswordStdin bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the farm portal",
	Long: `Sign in with email and password and store the session.

The password is prompted for on a terminal. Scripts pass it on standard
input with --password-stdin. Every other farmportal process on this
machine picks up the new session.

Examples:
  farmportal login --server https://farm.example.com
  farmportal login --email grower@example.com
  echo "$PASSWORD" | farmportal login --email grower@example.com --password-stdin`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email (env: FARMPORTAL_EMAIL)")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from standard input")
}

func runLogin(cmd *cobra.Command, args []string) error {
	input := bufio.NewReader(cmd.InOrStdin())

	email, err := readEmail(cmd, input)
	if err != nil {
		return err
	}
	password, err := readPassword(cmd, input)
	if err != nil {
		return err
	}

	application, err := newApplication("")
	if err != nil {
		return err
	}
	defer application.Close()

	stop := startSpinner("Signing in...")
	identity, err := application.Services().Session.Login(cmd.Context(), email, password)
	stop()
	if err != nil {
		if portal.IsUnauthorized(err) || portal.IsForbidden(err) {
			return &AuthFailedError{Email: email, Err: err}
		}
		return err
	}

	outPrintf(cmd, "%s Logged in to %s as %s\n", text.FgGreen.Sprint("✓"), application.Settings().Server.URL, identity.Email)
	if len(identity.Roles) > 0 {
		outPrintf(cmd, "  Roles: %s\n", strings.Join(roleNames(identity.Roles), ", "))
	}
	return nil
}

func readEmail(cmd *cobra.Command, input *bufio.Reader) (string, error) {
	if loginEmail == "" {
		loginEmail = os.Getenv("FARMPORTAL_EMAIL")
	}
	if loginEmail != "" {
		return strings.TrimSpace(loginEmail), nil
	}
	if loginPasswordStdin {
		return "", errors.New("--email is required with --password-stdin")
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
	line, err := input.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read email: %w", err)
	}
	email := strings.TrimSpace(line)
	if email == "" {
		return "", errors.New("email is required")
	}
	return email, nil
}

func readPassword(cmd *cobra.Command, input *bufio.Reader) (string, error) {
	if loginPasswordStdin {
		line, err := input.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("empty password on standard input")
		}
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("cannot prompt for a password without a terminal: use --password-stdin")
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("password is required")
	}
	return string(raw), nil
}
