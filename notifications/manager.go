package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/realtime"
	"github.com/quantforge/hft/store"
	"github.com/rs/zerolog/log"
)

// Manager handles the lifecycle of per-tenant notifications: persistence
// and real-time broadcast over the event bus.
type Manager struct {
	store store.DataStore
	bus   *realtime.EventBus
}

// NewManager creates a notification manager. bus may be nil in tests.
func NewManager(ds store.DataStore, bus *realtime.EventBus) *Manager {
	return &Manager{store: ds, bus: bus}
}

// Send creates, persists, and broadcasts a notification for tenant.
//
// Returns the created notification's ID.
func (m *Manager) Send(tenant string, notifType models.NotificationType, title, message string, metadata map[string]interface{}) (string, error) {
	id := uuid.New().String()

	n := models.Notification{
		ID:        id,
		Type:      notifType,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
		IsRead:    false,
		Metadata:  metadata,
	}

	if err := m.store.SaveNotification(tenant, n); err != nil {
		log.Error().Err(err).Str("tenant", tenant).Msg("notifications: failed to persist")
		return "", fmt.Errorf("notifications: save: %w", err)
	}

	if m.bus != nil {
		m.bus.Publish(tenant, "notification", n)
	}

	return id, nil
}

// GetHistory retrieves tenant's recent notifications, newest first.
func (m *Manager) GetHistory(tenant string, limit, offset int) ([]models.Notification, error) {
	return m.store.GetNotifications(tenant, limit, offset)
}

// MarkAsRead marks one of tenant's notifications as read.
func (m *Manager) MarkAsRead(tenant, id string) error {
	return m.store.MarkNotificationRead(tenant, id)
}

// MarkAllAsRead marks every one of tenant's notifications as read.
func (m *Manager) MarkAllAsRead(tenant string) error {
	return m.store.MarkAllNotificationsRead(tenant)
}

// Helper methods for common severities.

func (m *Manager) Info(tenant, title, message string) {
	if _, err := m.Send(tenant, models.NotificationInfo, title, message, nil); err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("notifications: info send failed")
	}
}

func (m *Manager) Success(tenant, title, message string) {
	if _, err := m.Send(tenant, models.NotificationSuccess, title, message, nil); err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("notifications: success send failed")
	}
}

func (m *Manager) Warning(tenant, title, message string) {
	if _, err := m.Send(tenant, models.NotificationWarning, title, message, nil); err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("notifications: warning send failed")
	}
}

func (m *Manager) Trade(tenant, title, message string) {
	if _, err := m.Send(tenant, models.NotificationTrade, title, message, nil); err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("notifications: trade send failed")
	}
}
