package session

import (
	"strings"
	"sync"
)

// Store holds the current access token in memory. The token is never
// persisted; after a restart it is re-obtained via refresh or login.
type Store struct {
	mu       sync.RWMutex
	token    string
	watchers []func(string)
}

func NewStore() *Store {
	return &Store{}
}

// Token returns the current token, or empty when absent
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set stores a token. Blank strings normalize to "no token".
func (s *Store) Set(token string) {
	normalized := strings.TrimSpace(token)

	s.mu.Lock()
	s.token = normalized
	watchers := make([]func(string), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, watch := range watchers {
		watch(normalized)
	}
}

// Watch registers a callback invoked on every token change
func (s *Store) Watch(fn func(token string)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}
