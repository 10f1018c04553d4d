package app

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmportal/internal/config"
	"farmportal/internal/session"
	"farmportal/internal/testing/mock"
)

func newTestPortal(t *testing.T) (*mock.PortalServer, string) {
	t.Helper()
	backend := mock.NewPortalServer(mock.PortalServerConfig{})
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv.URL
}

func newTestApplication(t *testing.T, configPath, serverURL string, heartbeat bool) *Application {
	t.Helper()
	settings := config.GetDefaultConfig()
	settings.Server.URL = serverURL
	settings.Heartbeat.Enabled = heartbeat
	settings.Session.WatchDebounce = 20 * time.Millisecond

	application, err := NewApplication(&Config{
		ConfigPath: configPath,
		Settings:   &settings,
		LogOutput:  &bytes.Buffer{},
	})
	require.NoError(t, err)
	t.Cleanup(application.Close)
	return application
}

func TestInitializeServices_RequiresServer(t *testing.T) {
	_, err := InitializeServices(&Config{ConfigPath: t.TempDir()}, config.GetDefaultConfig())
	assert.ErrorIs(t, err, ErrNoServer)
}

func TestInitializeServices(t *testing.T) {
	_, url := newTestPortal(t)
	configPath := t.TempDir()

	t.Run("with heartbeat", func(t *testing.T) {
		settings := config.GetDefaultConfig()
		settings.Server.URL = url

		services, err := InitializeServices(&Config{ConfigPath: configPath, Page: "Trim"}, settings)
		require.NoError(t, err)
		defer services.Close()

		require.NotNil(t, services.Heartbeat)
		assert.Equal(t, "Trim", services.Heartbeat.Page())
		assert.Equal(t, url+"/api", services.API.BaseURL())
		assert.Contains(t, services.Store.Path(), config.SessionDir(configPath, settings))
	})

	t.Run("without heartbeat", func(t *testing.T) {
		settings := config.GetDefaultConfig()
		settings.Server.URL = url
		settings.Heartbeat.Enabled = false

		services, err := InitializeServices(&Config{ConfigPath: configPath}, settings)
		require.NoError(t, err)
		defer services.Close()
		assert.Nil(t, services.Heartbeat)
	})
}

func TestApplyFlags(t *testing.T) {
	settings := config.GetDefaultConfig()
	applyFlags(&Config{
		ServerURL:        "https://farm.example.com",
		LogFormat:        "json",
		Debug:            true,
		DisableHeartbeat: true,
	}, &settings)

	assert.Equal(t, "https://farm.example.com", settings.Server.URL)
	assert.Equal(t, "json", settings.Logging.Format)
	assert.Equal(t, "debug", settings.Logging.Level)
	assert.False(t, settings.Heartbeat.Enabled)
}

func TestNewApplication_RejectsInvalidFlags(t *testing.T) {
	settings := config.GetDefaultConfig()
	settings.Server.URL = "http://localhost:5000"

	_, err := NewApplication(&Config{
		ConfigPath: t.TempDir(),
		Settings:   &settings,
		LogFormat:  "xml",
		LogOutput:  &bytes.Buffer{},
	})
	assert.Error(t, err)
}

func TestApplication_SessionSharedBetweenRuns(t *testing.T) {
	backend, url := newTestPortal(t)
	configPath := t.TempDir()

	first := newTestApplication(t, configPath, url, false)
	_, err := first.Services().Session.Login(context.Background(), mock.DefaultPortalUser.Email, mock.DefaultPortalUser.Password)
	require.NoError(t, err)

	second := newTestApplication(t, configPath, url, false)
	assert.True(t, second.Services().Session.IsAuthenticated())

	var rooms []mock.PortalRoom
	require.NoError(t, second.Services().API.GetJSON(context.Background(), "/rooms", &rooms))
	assert.NotEmpty(t, rooms)
	assert.Equal(t, 1, backend.ProtectedCalls())
}

func TestRunWatch_NotAuthenticated(t *testing.T) {
	_, url := newTestPortal(t)
	application := newTestApplication(t, t.TempDir(), url, false)

	err := RunWatch(context.Background(), application.Services(), nil)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestRunWatch_StopsOnCancel(t *testing.T) {
	backend, url := newTestPortal(t)
	application := newTestApplication(t, t.TempDir(), url, true)
	_, err := application.Services().Session.Login(context.Background(), mock.DefaultPortalUser.Email, mock.DefaultPortalUser.Password)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan *session.Identity, 1)
	done := make(chan error, 1)
	go func() {
		done <- RunWatch(ctx, application.Services(), func(identity *session.Identity) { ready <- identity })
	}()

	select {
	case identity := <-ready:
		assert.Equal(t, mock.DefaultPortalUser.Email, identity.Email)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not become ready")
	}

	assert.Eventually(t, func() bool { return backend.HeartbeatCalls() > 0 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.True(t, application.Services().Session.IsAuthenticated(), "stopping the watch keeps the session")
}

func TestRunWatch_EndsOnRemoteLogout(t *testing.T) {
	_, url := newTestPortal(t)
	configPath := t.TempDir()

	watcher := newTestApplication(t, configPath, url, false)
	other := newTestApplication(t, configPath, url, false)
	_, err := other.Services().Session.Login(context.Background(), mock.DefaultPortalUser.Email, mock.DefaultPortalUser.Password)
	require.NoError(t, err)

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- RunWatch(context.Background(), watcher.Services(), func(*session.Identity) { close(ready) })
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not become ready")
	}

	other.Services().Session.Logout(context.Background())

	select {
	case err := <-done:
		var ended *SessionEndedError
		require.True(t, errors.As(err, &ended))
		assert.Equal(t, session.ReasonRemoteLogout, ended.Event.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not end after logout")
	}
}

func TestSessionEndedError(t *testing.T) {
	cause := errors.New("refresh rejected")
	err := &SessionEndedError{Event: session.LogoutEvent{Reason: session.ReasonSessionExpired, Err: cause}}
	assert.Contains(t, err.Error(), "session_expired")
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "session ended (logout)", (&SessionEndedError{Event: session.LogoutEvent{Reason: session.ReasonLogout}}).Error())
}
