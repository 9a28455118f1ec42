package session

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/provider"
)

// DefaultMaxOpen bounds the number of sessions a Manager keeps open.
const DefaultMaxOpen = 32

// Manager keeps open sessions by ID. When the bound is reached the least
// recently used session is closed and evicted.
type Manager struct {
	opts     Options
	sessions *lru.Cache[string, *Session]
}

// NewManager creates a Manager opening sessions with opts.
func NewManager(opts Options, maxOpen int) (*Manager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpen
	}
	cache, err := lru.NewWithEvict[string, *Session](maxOpen, func(id string, s *Session) {
		s.Close()
		log.Debug().Str("session", id).Msg("session evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("session: create registry: %w", err)
	}
	return &Manager{opts: opts, sessions: cache}, nil
}

// Open starts and registers a session on the saved provider providerID.
func (m *Manager) Open(ctx context.Context, providerID string) (*Session, error) {
	s, err := Open(ctx, m.opts, providerID)
	if err != nil {
		return nil, err
	}
	m.sessions.Add(s.ID(), s)
	return s, nil
}

// OpenNew starts and registers a session for an unsaved provider.
func (m *Manager) OpenNew(p provider.Provider) (*Session, error) {
	s, err := OpenNew(m.opts, p)
	if err != nil {
		return nil, err
	}
	m.sessions.Add(s.ID(), s)
	return s, nil
}

// Get returns the open session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	return m.sessions.Get(id)
}

// Close closes and forgets the session. It reports whether it was open.
func (m *Manager) Close(id string) bool {
	return m.sessions.Remove(id)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.sessions.Purge()
}
