package cmd

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmportal/internal/testing/mock"
)

// resetFlags restores the package-level flag variables between runs.
func resetFlags() {
	serverURL, configPath, logLevel, logFormat = "", "", "", ""
	debug, quiet, noHeartbeat = false, false, false
	loginEmail, loginPasswordStdin = "", false
	statusOutput, statusVerify = "", false
	whoamiOutput = ""
	getOutput = "json"
	watchPage = "/"
}

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

type cliEnv struct {
	backend *mock.PortalServer
	args    []string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("FARMPORTAL_EMAIL", "")
	backend := mock.NewPortalServer(mock.PortalServerConfig{})
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return &cliEnv{
		backend: backend,
		args:    []string{"--server", srv.URL, "--config-path", t.TempDir(), "--log-level", "error"},
	}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeCommand(t, stdin, append(args, e.args...)...)
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	_, err := e.run(t, mock.DefaultPortalUser.Password+"\n", "login", "--email", mock.DefaultPortalUser.Email, "--password-stdin")
	require.NoError(t, err)
}

func TestCommands_SessionLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, mock.DefaultPortalUser.Password+"\n", "login", "--email", mock.DefaultPortalUser.Email, "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")
	assert.Contains(t, out, mock.DefaultPortalUser.Email)
	assert.Equal(t, 1, env.backend.LoginCalls())

	out, err = env.run(t, "", "status", "-o", "json")
	require.NoError(t, err)
	var status sessionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Authenticated)
	assert.True(t, status.Renewable)
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.After(time.Now()))
	require.NotNil(t, status.User)
	assert.Equal(t, mock.DefaultPortalUser.Email, status.User.Email)

	out, err = env.run(t, "", "get", "/rooms")
	require.NoError(t, err)
	var rooms []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rooms))
	assert.Len(t, rooms, 3)

	out, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, mock.DefaultPortalUser.Email)
	assert.Contains(t, out, "admin")

	out, err = env.run(t, "", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Session renewed")
	assert.Equal(t, 1, env.backend.RefreshCalls())

	out, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.Equal(t, 1, env.backend.LogoutCalls())

	out, err = env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestCommands_GetUsesStoredSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	env.backend.RevokeRefreshTokens()
	out, err := env.run(t, "", "get", "/rooms")
	require.NoError(t, err, "the access token is still valid")
	assert.Contains(t, out, "name")
	assert.Equal(t, 0, env.backend.RefreshCalls())
}

func TestCommands_StatusVerifyEndsRejectedSession(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	env.backend.SetSimulateErrors(&mock.PortalErrorSimulation{MeStatus: 401, RefreshStatus: 401})

	out, err := env.run(t, "", "status", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Session ended")

	env.backend.SetSimulateErrors(nil)
	out, err = env.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestCommands_LoginRefused(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "wrong\n", "login", "--email", mock.DefaultPortalUser.Email, "--password-stdin")
	require.Error(t, err)

	var refused *AuthFailedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))
}

func TestCommands_LoginNeedsEmailWithPasswordStdin(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "secret\n", "login", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email")
	assert.Equal(t, 0, env.backend.LoginCalls())
}

func TestCommands_RequireSession(t *testing.T) {
	env := newCLIEnv(t)

	for _, args := range [][]string{{"get", "/rooms"}, {"whoami"}, {"refresh"}, {"watch"}} {
		t.Run(args[0], func(t *testing.T) {
			_, err := env.run(t, "", args...)
			require.Error(t, err)
			assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
			assert.Contains(t, err.Error(), "farmportal login")
		})
	}
}

func TestCommands_RequireServer(t *testing.T) {
	t.Setenv("FARMPORTAL_SERVER", "")
	_, err := executeCommand(t, "", "status", "--config-path", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no portal server configured")
}

func TestCommands_InvalidOutputFormat(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "get", "/rooms", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "expired"},
		{30 * time.Second, "< 1 minute"},
		{time.Minute, "1 minute"},
		{14 * time.Minute, "14 minutes"},
		{time.Hour, "1 hour"},
		{5 * time.Hour, "5 hours"},
		{24 * time.Hour, "1 day"},
		{7 * 24 * time.Hour, "7 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d), tt.d.String())
	}
}

func TestFormatExpiryWithDirection(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "in 10 minutes", formatExpiryWithDirection(now.Add(10*time.Minute+time.Second), now))
	assert.Contains(t, formatExpiryWithDirection(now.Add(-2*time.Hour), now), "expired 2 hours ago")
}
