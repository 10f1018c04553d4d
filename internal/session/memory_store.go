package session

import (
	"sync"

	"golang.org/x/oauth2"
)

// MemoryStore is an in-process Store. Several Managers sharing one
// MemoryStore behave like several tabs sharing one browser profile: a
// change made through one is delivered to the subscribers of all of them.
//
// Listeners are invoked synchronously after the write, outside the lock.
type MemoryStore struct {
	mu        sync.RWMutex
	token     *oauth2.Token
	identity  *Identity
	nextID    int
	listeners map[int]func()
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listeners: make(map[int]func()),
	}
}

// Get returns the stored credential pair, or nil when empty.
func (s *MemoryStore) Get() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneToken(s.token), nil
}

// Set stores a new credential pair.
func (s *MemoryStore) Set(token *oauth2.Token) error {
	s.mu.Lock()
	s.token = cloneToken(token)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Clear removes the credential pair and the cached identity.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	changed := s.token != nil || s.identity != nil
	s.token = nil
	s.identity = nil
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return nil
}

// Identity returns the cached identity, or nil when none is stored.
func (s *MemoryStore) Identity() (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIdentity(s.identity), nil
}

// SetIdentity caches the user identity. It does not notify listeners; only
// credential changes are session changes.
func (s *MemoryStore) SetIdentity(identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = cloneIdentity(identity)
	return nil
}

// Subscribe registers onChange for credential changes.
func (s *MemoryStore) Subscribe(onChange func()) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = onChange
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) notify() {
	s.mu.RLock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
