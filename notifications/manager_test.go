package notifications

import (
	"testing"

	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	store.DataStore
	saved map[string][]models.Notification
	read  map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved: make(map[string][]models.Notification),
		read:  make(map[string]map[string]bool),
	}
}

func (s *fakeStore) SaveNotification(tenant string, n models.Notification) error {
	s.saved[tenant] = append(s.saved[tenant], n)
	return nil
}

func (s *fakeStore) GetNotifications(tenant string, limit, offset int) ([]models.Notification, error) {
	return s.saved[tenant], nil
}

func (s *fakeStore) MarkNotificationRead(tenant, id string) error {
	if s.read[tenant] == nil {
		s.read[tenant] = make(map[string]bool)
	}
	s.read[tenant][id] = true
	return nil
}

func (s *fakeStore) MarkAllNotificationsRead(tenant string) error {
	for i := range s.saved[tenant] {
		s.saved[tenant][i].IsRead = true
	}
	return nil
}

func TestManager_Send_PersistsAndScopesToTenant(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, nil)

	id, err := m.Send("alice", models.NotificationInfo, "title", "msg", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	history, err := m.GetHistory("alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "title", history[0].Title)

	bobHistory, err := m.GetHistory("bob", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, bobHistory)
}

func TestManager_MarkAllAsRead(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, nil)

	_, err := m.Send("alice", models.NotificationWarning, "a", "b", nil)
	require.NoError(t, err)
	_, err = m.Send("alice", models.NotificationWarning, "c", "d", nil)
	require.NoError(t, err)

	require.NoError(t, m.MarkAllAsRead("alice"))

	history, err := m.GetHistory("alice", 10, 0)
	require.NoError(t, err)
	for _, n := range history {
		assert.True(t, n.IsRead)
	}
}

func TestManager_HelperSeveritiesDoNotPanic(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, nil)

	m.Info("alice", "t", "m")
	m.Success("alice", "t", "m")
	m.Warning("alice", "t", "m")
	m.Trade("alice", "t", "m")

	history, err := m.GetHistory("alice", 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}
