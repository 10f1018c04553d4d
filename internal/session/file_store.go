package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultSessionDir is the default directory, relative to the user's home,
// where session files are kept.
const DefaultSessionDir = ".config/farmportal/sessions"

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Dir is the directory holding session files.
	// Defaults to ~/.config/farmportal/sessions
	Dir string

	// ServerURL selects the session file. Every process using the same Dir
	// and ServerURL shares one session.
	ServerURL string

	// WatchDebounce overrides DefaultWatchDebounce.
	WatchDebounce time.Duration

	// WatchPollInterval overrides DefaultWatchPollInterval.
	WatchPollInterval time.Duration
}

// storedSession is the on-disk layout of a session file.
type storedSession struct {
	ServerURL    string    `json:"server_url"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	User         *Identity `json:"user,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FileStore persists the session in a single JSON file and notifies
// subscribers when any process changes it.
//
// SECURITY: The file holds live credentials.
//   - Files are written with 0600 permissions (owner read/write only)
//   - The directory is created with 0700 permissions (owner only)
//   - Writes go to a temporary file that is renamed into place, so readers
//     never see a half-written pair
//   - Credential values are never logged
type FileStore struct {
	mu        sync.Mutex
	dir       string
	file      string
	serverURL string

	// cache is the last decoded file and the stat it was decoded from.
	cache     *storedSession
	cacheInfo os.FileInfo

	watchDebounce     time.Duration
	watchPollInterval time.Duration

	listenersMu sync.Mutex
	listeners   map[int]func()
	nextID      int
	watcher     *fileWatcher
}

// NewFileStore creates the session directory if needed and returns a store
// for cfg.ServerURL.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("file store requires a server URL")
	}

	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultSessionDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &FileStore{
		dir:               dir,
		file:              sessionFileName(cfg.ServerURL),
		serverURL:         cfg.ServerURL,
		watchDebounce:     cfg.WatchDebounce,
		watchPollInterval: cfg.WatchPollInterval,
		listeners:         make(map[int]func()),
	}, nil
}

// sessionFileName derives a filesystem-safe file name from the server URL.
func sessionFileName(serverURL string) string {
	hash := sha256.Sum256([]byte(serverURL))
	return hex.EncodeToString(hash[:16]) + ".json"
}

// Path returns the session file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, s.file)
}

// Get returns the stored credential pair, or nil when no session exists.
func (s *FileStore) Get() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil || stored == nil || stored.AccessToken == "" {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
	}, nil
}

// Set writes a new credential pair, keeping the cached identity.
func (s *FileStore) Set(token *oauth2.Token) error {
	if token == nil {
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking a fresh login.
		stored = nil
	}
	if stored == nil {
		stored = &storedSession{}
	}

	stored.ServerURL = s.serverURL
	stored.AccessToken = token.AccessToken
	stored.RefreshToken = token.RefreshToken
	stored.TokenType = token.TokenType
	stored.UpdatedAt = time.Now()

	if err := s.write(stored); err != nil {
		slog.Warn("SECURITY_AUDIT: session credential storage failed",
			"event", "session_store_failed",
			"server_url", s.serverURL,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist session: %w", err)
	}

	slog.Debug("SECURITY_AUDIT: session credentials stored",
		"event", "session_stored",
		"server_url", s.serverURL,
		"has_refresh_token", token.RefreshToken != "",
	)
	return nil
}

// Clear removes the session file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = nil
	s.cacheInfo = nil

	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		slog.Warn("SECURITY_AUDIT: session deletion failed",
			"event", "session_delete_failed",
			"server_url", s.serverURL,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	slog.Info("SECURITY_AUDIT: session deleted",
		"event", "session_deleted",
		"server_url", s.serverURL,
	)
	return nil
}

// Identity returns the cached identity, or nil when none is stored.
func (s *FileStore) Identity() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil || stored == nil {
		return nil, err
	}
	return cloneIdentity(stored.User), nil
}

// SetIdentity caches the user identity next to the credentials. It fails
// with ErrNotAuthenticated when no session file exists.
func (s *FileStore) SetIdentity(identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load()
	if err != nil {
		return err
	}
	if stored == nil {
		return ErrNotAuthenticated
	}

	stored.User = cloneIdentity(identity)
	stored.UpdatedAt = time.Now()
	return s.write(stored)
}

// load returns the decoded session file, re-reading it only when the file
// changed on disk since the last read. Callers hold s.mu.
func (s *FileStore) load() (*storedSession, error) {
	info, err := os.Stat(s.Path())
	if os.IsNotExist(err) {
		s.cache = nil
		s.cacheInfo = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	if s.cache != nil && s.cacheInfo != nil && os.SameFile(info, s.cacheInfo) &&
		info.ModTime().Equal(s.cacheInfo.ModTime()) && info.Size() == s.cacheInfo.Size() {
		copied := *s.cache
		return &copied, nil
	}

	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	s.cache = &stored
	s.cacheInfo = info
	copied := stored
	return &copied, nil
}

// write atomically replaces the session file. Callers hold s.mu.
func (s *FileStore) write(stored *storedSession) error {
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+s.file+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.cache = nil
	s.cacheInfo = nil
	return nil
}

// Subscribe registers onChange for session file changes made by this or
// any other process. The directory watcher starts with the first
// subscriber and stops with the last.
func (s *FileStore) Subscribe(onChange func()) (func(), error) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	if s.watcher == nil {
		w := newFileWatcher(fileWatcherConfig{
			Dir:          s.dir,
			File:         s.file,
			Debounce:     s.watchDebounce,
			PollInterval: s.watchPollInterval,
			OnChange:     s.notify,
		})
		if err := w.Start(); err != nil {
			return nil, fmt.Errorf("failed to watch session directory: %w", err)
		}
		s.watcher = w
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}, nil
}

func (s *FileStore) unsubscribe(id int) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	delete(s.listeners, id)
	if len(s.listeners) == 0 && s.watcher != nil {
		_ = s.watcher.Stop()
		s.watcher = nil
	}
}

func (s *FileStore) notify() {
	s.listenersMu.Lock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Close stops the directory watcher. Subscriptions become inert.
func (s *FileStore) Close() error {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.listeners = make(map[int]func())
	if s.watcher != nil {
		err := s.watcher.Stop()
		s.watcher = nil
		return err
	}
	return nil
}
