package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

// Memory keeps users in process. It backs local runs and tests.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*users.User
}

func NewMemory(initial ...*users.User) *Memory {
	m := &Memory{users: make(map[string]*users.User)}
	for _, u := range initial {
		m.users[u.ID] = cloneUser(u)
	}
	return m
}

func (m *Memory) GetUser(_ context.Context, id string) (*users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) GetUserByAPIKey(_ context.Context, apiKey string) (*users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if apiKey != "" && u.APIKey == apiKey {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *Memory) ListUsers(_ context.Context) ([]*users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*users.User, 0, len(m.users))
	for _, u := range m.users {
		list = append(list, cloneUser(u))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// SaveUser stores the profile and configurations. Known notifications are kept.
func (m *Memory) SaveUser(_ context.Context, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := cloneUser(u)
	if old, ok := m.users[u.ID]; ok {
		saved.Notifications = old.Notifications
	}
	m.users[u.ID] = saved
	return nil
}

func (m *Memory) SetNotificationDate(_ context.Context, userID string, fundingRequestID int, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Notifications[fundingRequestID] = users.Notification{FundingRequestID: fundingRequestID, Date: date}
	return nil
}

func (m *Memory) DeleteNotification(_ context.Context, userID string, fundingRequestID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(u.Notifications, fundingRequestID)
	return nil
}
