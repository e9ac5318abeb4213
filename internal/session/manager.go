package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Manager tracks which tabs have the overlay active.
// A tab id absent from the registry is inactive.
type Manager struct {
	sessions map[int]*models.Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int]*models.Session),
		now:      time.Now,
	}
}

// WithClock replaces the clock used to stamp activations
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Activate registers an overlay session for the tab, replacing any existing one
func (m *Manager) Activate(tabID int, url string) *models.Session {
	session := &models.Session{
		TabID:       tabID,
		URL:         url,
		ActivatedAt: m.now(),
	}

	m.mu.Lock()
	m.sessions[tabID] = session
	m.mu.Unlock()

	return session
}

// Deactivate removes the tab's session and reports whether one existed
func (m *Manager) Deactivate(tabID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[tabID]; !ok {
		return false
	}
	delete(m.sessions, tabID)
	return true
}

// IsActive reports whether the tab has an active session
func (m *Manager) IsActive(tabID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[tabID]
	return ok
}

// Get retrieves a session by tab id
func (m *Manager) Get(tabID int) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[tabID]
	if !ok {
		return nil, fmt.Errorf("no active session for tab %d", tabID)
	}
	copied := *session
	return &copied, nil
}

// List returns a snapshot of all sessions ordered by tab id
func (m *Manager) List() []models.Session {
	m.mu.RLock()
	sessions := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, *s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].TabID < sessions[j].TabID })
	return sessions
}

// ActiveTabs returns the ids of all tabs with an active session in ascending order
func (m *Manager) ActiveTabs() []int {
	m.mu.RLock()
	tabs := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		tabs = append(tabs, id)
	}
	m.mu.RUnlock()

	sort.Ints(tabs)
	return tabs
}

// Len returns the number of active sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
