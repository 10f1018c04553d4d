package app

import (
	"errors"
	"fmt"
	"net/http"

	"farmportal/internal/config"
	"farmportal/internal/heartbeat"
	"farmportal/internal/portal"
	"farmportal/internal/session"
	"farmportal/pkg/logging"
)

// ErrNoServer is returned when no portal URL was configured.
var ErrNoServer = errors.New("no portal server configured: use --server, FARMPORTAL_SERVER or server.url in config.yaml")

// UserAgent is sent with every API request. cmd sets the version suffix.
var UserAgent = "farmportal"

// Services holds the components of one client session.
//
// Wiring order matters: the manager needs the portal client as its backend,
// and the client's HTTP calls then go through the manager's transport.
type Services struct {
	// API is the portal client, bound to the session transport.
	API *portal.Client

	// Store persists the credential pair under the session directory.
	Store *session.FileStore

	// Session owns login, logout, renewal and cross-process sync.
	Session *session.Manager

	// Heartbeat reports activity while logged in. Nil when disabled.
	Heartbeat *heartbeat.Beater
}

// InitializeServices creates the portal client, credential store, heartbeat
// and session manager for settings.
func InitializeServices(cfg *Config, settings config.Config) (*Services, error) {
	if settings.Server.URL == "" {
		return nil, ErrNoServer
	}

	api := portal.NewClient(settings.Server.URL, portal.WithUserAgent(UserAgent))

	store, err := session.NewFileStore(session.FileStoreConfig{
		Dir:               config.SessionDir(cfg.ConfigPath, settings),
		ServerURL:         api.BaseURL(),
		WatchDebounce:     settings.Session.WatchDebounce,
		WatchPollInterval: settings.Session.WatchPollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	managerCfg := session.Config{
		Store:             store,
		Backend:           api,
		RenewalTimeout:    settings.Session.RenewalTimeout,
		ProactiveInterval: settings.Session.ProactiveInterval,
		ProactiveMargin:   settings.Session.ProactiveMargin,
		RequestMargin:     settings.Session.RequestMargin,
		SkipPaths:         portal.AuthPaths,
	}

	var beater *heartbeat.Beater
	if settings.Heartbeat.Enabled {
		page := cfg.Page
		if page == "" {
			page = heartbeat.PageName("/")
		}
		beater = heartbeat.New(api, page, settings.Heartbeat.Interval)
		managerCfg.Heartbeat = beater
	}

	mgr, err := session.NewManager(managerCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	api.SetHTTPClient(mgr.HTTPClient(base, settings.Server.Timeout))

	logging.Debug("Services", "Session for %s stored at %s", api.BaseURL(), store.Path())

	return &Services{
		API:       api,
		Store:     store,
		Session:   mgr,
		Heartbeat: beater,
	}, nil
}

// Close stops the session's background work and the store watcher.
func (s *Services) Close() {
	s.Session.Close()
	if err := s.Store.Close(); err != nil {
		logging.Warn("Services", "Failed to close credential store: %v", err)
	}
}
