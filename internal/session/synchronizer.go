package session

import (
	"sync"

	"farmportal/pkg/logging"
)

// Synchronizer reconciles local state with credential changes made
// elsewhere, typically by another process sharing the same FileStore.
//
// When the stored access credential disappears, onRemoved runs. When it
// is present, onPresent runs. Both callbacks must be idempotent because the
// store also reports this process's own writes.
type Synchronizer struct {
	store     Store
	onPresent func()
	onRemoved func()

	mu          sync.Mutex
	unsubscribe func()
}

// NewSynchronizer creates a stopped synchronizer.
func NewSynchronizer(store Store, onPresent, onRemoved func()) *Synchronizer {
	return &Synchronizer{
		store:     store,
		onPresent: onPresent,
		onRemoved: onRemoved,
	}
}

// Start subscribes to store changes. Starting twice does nothing.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		return nil
	}

	unsubscribe, err := s.store.Subscribe(s.reconcile)
	if err != nil {
		return err
	}
	s.unsubscribe = unsubscribe
	return nil
}

// Stop releases the store subscription. Stopping twice does nothing.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Running reports whether the synchronizer is subscribed.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribe != nil
}

func (s *Synchronizer) reconcile() {
	token, err := s.store.Get()
	if err != nil {
		logging.Warn("Sync", "Failed to read session after change: %v", err)
		return
	}

	if hasAccess(token) {
		logging.Debug("Sync", "Session credential present after change")
		if s.onPresent != nil {
			s.onPresent()
		}
		return
	}

	logging.Debug("Sync", "Session credential removed")
	if s.onRemoved != nil {
		s.onRemoved()
	}
}
