// Package session persists the signed-in principal of the command line client.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/models"
)

// Session is the persisted sign-in state.
type Session struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// Expired reports whether the access token has expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Manager loads, saves and clears the session kept under "<prefix>:session".
type Manager struct {
	kv  database.KeyValueStore
	key string

	mu      sync.RWMutex
	current *Session
}

// NewManager creates a manager. Nothing is read until Load.
func NewManager(kv database.KeyValueStore, prefix string) *Manager {
	if prefix == "" {
		prefix = "sevaconnect"
	}
	return &Manager{kv: kv, key: prefix + ":session"}
}

// Load reads the persisted session. A missing session is not an error.
func (m *Manager) Load(ctx context.Context) (*Session, error) {
	raw, ok, err := m.kv.Get(ctx, m.key)
	if err != nil {
		return nil, apperr.Persistence("get", m.key, err)
	}

	var s *Session
	if ok && len(raw) > 0 {
		s = &Session{}
		if err := json.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s, nil
}

// Save persists s and makes it current.
func (m *Manager) Save(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.kv.Set(ctx, m.key, raw); err != nil {
		return apperr.Persistence("set", m.key, err)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return nil
}

// Clear removes the persisted session.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.kv.Remove(ctx, m.key); err != nil {
		return apperr.Persistence("remove", m.key, err)
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return nil
}

// Current returns the session loaded or saved last.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}
