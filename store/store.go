package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantforge/hft/models"
)

// DataStore is the persistence capability (C2) every other component
// depends on for durable state: encrypted integration credentials,
// per-tenant engine status, and append-only logs. Integration and engine
// status writes are upserts keyed by tenant; log, activity and notification
// writes append a new row on every call.
type DataStore interface {
	SaveIntegration(rec models.IntegrationRecord) error
	GetEnabledIntegrations(tenant string) ([]models.IntegrationRecord, error)

	SaveEngineStatus(tenant string, status models.EngineStatus) error
	GetEngineStatus(tenant string, engineType models.EngineType, symbol string) (*models.EngineStatus, error)
	GetAllEngineStatuses(tenant string) ([]models.EngineStatus, error)

	SaveExecutionLog(tenant string, order models.Order, reason string) error
	GetHFTExecutionLogs(tenant string, limit int) ([]ExecutionLogEntry, error)

	SaveResearchLog(tenant string, result models.ResearchResult) error
	GetResearchLogs(tenant string, limit int) ([]ResearchLogEntry, error)

	LogActivity(tenant, action, detail string) error

	SaveNotification(tenant string, n models.Notification) error
	GetNotifications(tenant string, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(tenant, id string) error
	MarkAllNotificationsRead(tenant string) error
}

// ExecutionLogEntry is one row of the HFT execution audit trail.
type ExecutionLogEntry struct {
	ID        int64     `db:"id" json:"id"`
	Tenant    string    `db:"tenant" json:"tenant"`
	Symbol    string    `db:"symbol" json:"symbol"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Side      string    `db:"side" json:"side"`
	Quantity  string    `db:"quantity" json:"quantity"`
	Price     string    `db:"price" json:"price"`
	Status    string    `db:"status" json:"status"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ResearchLogEntry is one row of the research signal history.
type ResearchLogEntry struct {
	ID                int64     `db:"id" json:"id"`
	Tenant            string    `db:"tenant" json:"tenant"`
	Symbol            string    `db:"symbol" json:"symbol"`
	Signal            string    `db:"signal" json:"signal"`
	Accuracy          float64   `db:"accuracy" json:"accuracy"`
	Imbalance         float64   `db:"imbalance" json:"imbalance"`
	RecommendedAction string    `db:"recommended_action" json:"recommended_action"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// engineStatusRow is the wire shape of the engine_status table; Config is
// stored as a JSON blob since its shape varies by engine type.
type engineStatusRow struct {
	Tenant     string    `db:"tenant"`
	EngineType string    `db:"engine_type"`
	Symbol     string    `db:"symbol"`
	Active     bool      `db:"active"`
	ConfigJSON string    `db:"config_json"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// SQLStore implements DataStore over SQLite.
type SQLStore struct {
	db *DB
}

// NewSQLStore constructs a store bound to an already-migrated database.
func NewSQLStore(db *DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) SaveIntegration(rec models.IntegrationRecord) error {
	query := `
		INSERT INTO integrations (tenant, provider, subtype, enabled, encrypted_api_key, encrypted_secret, updated_at)
		VALUES (:tenant, :provider, :subtype, :enabled, :encrypted_api_key, :encrypted_secret, :updated_at)
		ON CONFLICT(tenant, provider, subtype) DO UPDATE SET
			enabled = excluded.enabled,
			encrypted_api_key = excluded.encrypted_api_key,
			encrypted_secret = excluded.encrypted_secret,
			updated_at = excluded.updated_at
	`
	rec.UpdatedAt = time.Now()
	_, err := s.db.NamedExec(query, rec)
	if err != nil {
		return fmt.Errorf("store: save integration: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEnabledIntegrations(tenant string) ([]models.IntegrationRecord, error) {
	var recs []models.IntegrationRecord
	query := `
		SELECT tenant, provider, subtype, enabled, encrypted_api_key, encrypted_secret, updated_at
		FROM integrations
		WHERE tenant = ? AND enabled = 1
	`
	if err := s.db.Select(&recs, query, tenant); err != nil {
		return nil, fmt.Errorf("store: get enabled integrations: %w", err)
	}
	return recs, nil
}

func (s *SQLStore) SaveEngineStatus(tenant string, status models.EngineStatus) error {
	cfgJSON, err := json.Marshal(status.Config)
	if err != nil {
		return fmt.Errorf("store: marshal engine config: %w", err)
	}

	row := engineStatusRow{
		Tenant:     tenant,
		EngineType: string(status.EngineType),
		Symbol:     status.Symbol,
		Active:     status.Active,
		ConfigJSON: string(cfgJSON),
		UpdatedAt:  time.Now(),
	}

	query := `
		INSERT INTO engine_status (tenant, engine_type, symbol, active, config_json, updated_at)
		VALUES (:tenant, :engine_type, :symbol, :active, :config_json, :updated_at)
		ON CONFLICT(tenant, engine_type, symbol) DO UPDATE SET
			active = excluded.active,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("store: save engine status: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEngineStatus(tenant string, engineType models.EngineType, symbol string) (*models.EngineStatus, error) {
	var row engineStatusRow
	query := `
		SELECT tenant, engine_type, symbol, active, config_json, updated_at
		FROM engine_status
		WHERE tenant = ? AND engine_type = ? AND symbol = ?
	`
	if err := s.db.Get(&row, query, tenant, string(engineType), symbol); err != nil {
		return nil, fmt.Errorf("store: get engine status: %w", err)
	}
	return rowToStatus(row)
}

func (s *SQLStore) GetAllEngineStatuses(tenant string) ([]models.EngineStatus, error) {
	var rows []engineStatusRow
	query := `
		SELECT tenant, engine_type, symbol, active, config_json, updated_at
		FROM engine_status
		WHERE tenant = ?
	`
	if err := s.db.Select(&rows, query, tenant); err != nil {
		return nil, fmt.Errorf("store: get all engine statuses: %w", err)
	}

	statuses := make([]models.EngineStatus, 0, len(rows))
	for _, row := range rows {
		st, err := rowToStatus(row)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}

func rowToStatus(row engineStatusRow) (*models.EngineStatus, error) {
	var cfg models.EngineConfig
	if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("store: unmarshal engine config: %w", err)
	}
	return &models.EngineStatus{
		Active:     row.Active,
		EngineType: models.EngineType(row.EngineType),
		Symbol:     row.Symbol,
		Config:     cfg,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

func (s *SQLStore) SaveExecutionLog(tenant string, order models.Order, reason string) error {
	query := `
		INSERT INTO execution_logs (tenant, symbol, order_id, side, quantity, price, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, tenant, order.Symbol, order.ID, string(order.Side),
		order.Quantity.String(), order.Price.String(), string(order.Status), reason, time.Now())
	if err != nil {
		return fmt.Errorf("store: save execution log: %w", err)
	}
	return nil
}

func (s *SQLStore) GetHFTExecutionLogs(tenant string, limit int) ([]ExecutionLogEntry, error) {
	var entries []ExecutionLogEntry
	query := `
		SELECT id, tenant, symbol, order_id, side, quantity, price, status, reason, created_at
		FROM execution_logs
		WHERE tenant = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	if err := s.db.Select(&entries, query, tenant, boundedLimit(limit)); err != nil {
		return nil, fmt.Errorf("store: get execution logs: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) SaveResearchLog(tenant string, result models.ResearchResult) error {
	query := `
		INSERT INTO research_logs (tenant, symbol, signal, accuracy, imbalance, recommended_action, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, tenant, result.Symbol, string(result.Signal), result.Accuracy,
		result.Imbalance, result.RecommendedAction, time.Now())
	if err != nil {
		return fmt.Errorf("store: save research log: %w", err)
	}
	return nil
}

func (s *SQLStore) GetResearchLogs(tenant string, limit int) ([]ResearchLogEntry, error) {
	var entries []ResearchLogEntry
	query := `
		SELECT id, tenant, symbol, signal, accuracy, imbalance, recommended_action, created_at
		FROM research_logs
		WHERE tenant = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	if err := s.db.Select(&entries, query, tenant, boundedLimit(limit)); err != nil {
		return nil, fmt.Errorf("store: get research logs: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) LogActivity(tenant, action, detail string) error {
	query := `INSERT INTO activity_log (tenant, action, detail, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, tenant, action, detail, time.Now())
	if err != nil {
		return fmt.Errorf("store: log activity: %w", err)
	}
	return nil
}

// notificationRow is the wire shape of the notifications table; tenant is
// not part of models.Notification since notifications are always read back
// scoped to the tenant that requested them.
type notificationRow struct {
	ID        string    `db:"id"`
	Tenant    string    `db:"tenant"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Metadata  string    `db:"metadata"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *SQLStore) SaveNotification(tenant string, n models.Notification) error {
	if err := n.PrepareForSave(); err != nil {
		return fmt.Errorf("store: marshal notification metadata: %w", err)
	}
	row := notificationRow{
		ID: n.ID, Tenant: tenant, Type: string(n.Type), Title: n.Title,
		Message: n.Message, Metadata: n.MetadataJSON, IsRead: n.IsRead, CreatedAt: n.CreatedAt,
	}
	query := `
		INSERT INTO notifications (id, tenant, type, title, message, metadata, is_read, created_at)
		VALUES (:id, :tenant, :type, :title, :message, :metadata, :is_read, :created_at)
	`
	if _, err := s.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("store: save notification: %w", err)
	}
	return nil
}

func (s *SQLStore) GetNotifications(tenant string, limit, offset int) ([]models.Notification, error) {
	var rows []notificationRow
	query := `
		SELECT id, tenant, type, title, message, metadata, is_read, created_at
		FROM notifications
		WHERE tenant = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	if err := s.db.Select(&rows, query, tenant, boundedLimit(limit), offset); err != nil {
		return nil, fmt.Errorf("store: get notifications: %w", err)
	}

	notifications := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		n := models.Notification{
			ID: row.ID, Type: models.NotificationType(row.Type), Title: row.Title,
			Message: row.Message, MetadataJSON: row.Metadata, IsRead: row.IsRead, CreatedAt: row.CreatedAt,
		}
		if err := n.PostLoad(); err != nil {
			return nil, fmt.Errorf("store: unmarshal notification metadata: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

func (s *SQLStore) MarkNotificationRead(tenant, id string) error {
	query := `UPDATE notifications SET is_read = 1 WHERE tenant = ? AND id = ?`
	if _, err := s.db.Exec(query, tenant, id); err != nil {
		return fmt.Errorf("store: mark notification read: %w", err)
	}
	return nil
}

func (s *SQLStore) MarkAllNotificationsRead(tenant string) error {
	query := `UPDATE notifications SET is_read = 1 WHERE tenant = ?`
	if _, err := s.db.Exec(query, tenant); err != nil {
		return fmt.Errorf("store: mark all notifications read: %w", err)
	}
	return nil
}

func boundedLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 200
	}
	return limit
}
