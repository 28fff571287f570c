package automation

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/automation_backend/config"
	"github.com/mmdatafocus/automation_backend/models"
	"github.com/mmdatafocus/automation_backend/utils"
	"gorm.io/gorm"
)

// Store is the narrow record-store contract the engine needs: ordered reads
// of active automations, append-only log insertion, atomic counter updates
// and upsert-with-uniqueness for idempotency keys. The engine receives it at
// construction; nothing in this package reaches for global state.
type Store interface {
	ActiveAutomations(ctx context.Context, workspaceId, triggerEvent string) ([]models.IntegrationAutomation, error)
	GetAutomation(ctx context.Context, workspaceId string, id uint) (*models.IntegrationAutomation, error)
	GetProvider(ctx context.Context, id uint) (*models.IntegrationProvider, error)
	GetProviderByName(ctx context.Context, name string) (*models.IntegrationProvider, error)
	GetIntegration(ctx context.Context, workspaceId string, providerId uint) (*models.WorkspaceIntegration, error)
	ListIntegrations(ctx context.Context, workspaceId string) ([]models.WorkspaceIntegration, error)
	UpsertIntegration(ctx context.Context, integration *models.WorkspaceIntegration) error
	SetIntegrationStatus(ctx context.Context, workspaceId string, providerId uint, status string, errMsg *string) error
	ActiveFieldMappings(ctx context.Context, workspaceId string, integrationId uint) ([]models.FieldMapping, error)

	CreateExecutionLog(ctx context.Context, row *models.ExecutionLog) error
	FinishExecutionLog(ctx context.Context, id uint, status string, errMsg *string, finishedAt time.Time, durationMs int64) error
	RecordAutomationResult(ctx context.Context, automationId uint, success bool, errMsg *string, at time.Time) error
	RecordIntegrationResult(ctx context.Context, workspaceId string, providerId uint, success bool, errMsg *string, at time.Time) error

	// ClaimEventKey inserts the event identity, returning false when the
	// identity was already claimed (duplicate delivery).
	ClaimEventKey(ctx context.Context, key models.WebhookEventKey) (bool, error)

	Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error
	GetQueueEntry(ctx context.Context, workspaceId string, id uint) (*models.SyncQueueEntry, error)
	RequeueEntry(ctx context.Context, workspaceId string, id uint) error
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a GORM handle in the Store contract. A nil handle means
// "use the shared connection", resolved per call so the store can be built
// before the database finishes connecting at startup.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) conn() *gorm.DB {
	if s.db != nil {
		return s.db
	}
	return config.GetDB()
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func (s *gormStore) ActiveAutomations(ctx context.Context, workspaceId, triggerEvent string) ([]models.IntegrationAutomation, error) {
	var automations []models.IntegrationAutomation
	err := s.conn().WithContext(ctx).
		Where("workspace_id = ? AND trigger_event = ? AND is_active = ?", workspaceId, triggerEvent, true).
		Order("execution_order ASC, id ASC").
		Find(&automations).Error
	if err != nil {
		return nil, err
	}
	return automations, nil
}

func (s *gormStore) GetAutomation(ctx context.Context, workspaceId string, id uint) (*models.IntegrationAutomation, error) {
	var automation models.IntegrationAutomation
	err := s.conn().WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceId).
		Take(&automation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &automation, nil
}

func (s *gormStore) GetProvider(ctx context.Context, id uint) (*models.IntegrationProvider, error) {
	var provider models.IntegrationProvider
	err := s.conn().WithContext(ctx).Where("id = ?", id).Take(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (s *gormStore) GetProviderByName(ctx context.Context, name string) (*models.IntegrationProvider, error) {
	var provider models.IntegrationProvider
	err := s.conn().WithContext(ctx).Where("name = ?", name).Take(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (s *gormStore) GetIntegration(ctx context.Context, workspaceId string, providerId uint) (*models.WorkspaceIntegration, error) {
	var integration models.WorkspaceIntegration
	err := s.conn().WithContext(ctx).
		Where("workspace_id = ? AND provider_id = ?", workspaceId, providerId).
		Take(&integration).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (s *gormStore) ListIntegrations(ctx context.Context, workspaceId string) ([]models.WorkspaceIntegration, error) {
	var integrations []models.WorkspaceIntegration
	err := s.conn().WithContext(ctx).
		Where("workspace_id = ?", workspaceId).
		Order("provider_id ASC").
		Find(&integrations).Error
	return integrations, err
}

func (s *gormStore) UpsertIntegration(ctx context.Context, integration *models.WorkspaceIntegration) error {
	existing, err := s.GetIntegration(ctx, integration.WorkspaceId, integration.ProviderId)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.conn().WithContext(ctx).Create(integration).Error
	}
	integration.ID = existing.ID
	return s.conn().WithContext(ctx).
		Model(&models.WorkspaceIntegration{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"auth_data_json": integration.AuthDataJSON,
			"settings_json":  integration.SettingsJSON,
			"sync_status":    integration.SyncStatus,
		}).Error
}

func (s *gormStore) SetIntegrationStatus(ctx context.Context, workspaceId string, providerId uint, status string, errMsg *string) error {
	return s.conn().WithContext(ctx).
		Model(&models.WorkspaceIntegration{}).
		Where("workspace_id = ? AND provider_id = ?", workspaceId, providerId).
		Updates(map[string]interface{}{
			"sync_status": status,
			"last_error":  errMsg,
		}).Error
}

func (s *gormStore) ActiveFieldMappings(ctx context.Context, workspaceId string, integrationId uint) ([]models.FieldMapping, error) {
	var mappings []models.FieldMapping
	err := s.conn().WithContext(ctx).
		Where("workspace_id = ? AND integration_id = ? AND is_active = ?", workspaceId, integrationId, true).
		Order("sort_order ASC, id ASC").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (s *gormStore) CreateExecutionLog(ctx context.Context, row *models.ExecutionLog) error {
	return s.conn().WithContext(ctx).Create(row).Error
}

func (s *gormStore) FinishExecutionLog(ctx context.Context, id uint, status string, errMsg *string, finishedAt time.Time, durationMs int64) error {
	return s.conn().WithContext(ctx).
		Model(&models.ExecutionLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"finished_at":   &finishedAt,
			"duration_ms":   durationMs,
		}).Error
}

func (s *gormStore) RecordAutomationResult(ctx context.Context, automationId uint, success bool, errMsg *string, at time.Time) error {
	updates := map[string]interface{}{
		"total_executions": gorm.Expr("total_executions + 1"),
		"last_run_at":      &at,
	}
	if success {
		updates["successful_executions"] = gorm.Expr("successful_executions + 1")
		updates["last_error"] = nil
	} else {
		updates["failed_executions"] = gorm.Expr("failed_executions + 1")
		updates["last_error"] = errMsg
	}
	return s.conn().WithContext(ctx).
		Model(&models.IntegrationAutomation{}).
		Where("id = ?", automationId).
		Updates(updates).Error
}

func (s *gormStore) RecordIntegrationResult(ctx context.Context, workspaceId string, providerId uint, success bool, errMsg *string, at time.Time) error {
	updates := map[string]interface{}{
		"total_executions":   gorm.Expr("total_executions + 1"),
		"monthly_executions": gorm.Expr("monthly_executions + 1"),
	}
	db := s.conn().WithContext(ctx).
		Model(&models.WorkspaceIntegration{}).
		Where("workspace_id = ? AND provider_id = ?", workspaceId, providerId)
	if success {
		updates["last_success_at"] = &at
		updates["last_error"] = nil
		// A paused integration stays paused; anything else is healthy again.
		updates["sync_status"] = models.SyncStatusActive
		db = db.Where("sync_status <> ?", models.SyncStatusPaused)
	} else {
		updates["sync_status"] = models.SyncStatusError
		updates["last_error"] = errMsg
	}
	return db.Updates(updates).Error
}

// claimDurably orders an idempotency claim so the durable insert is the
// source of truth. Redis is a read-through duplicate cache only written
// after the row exists; a failed insert leaves no cache entry, so the
// sender's retry gets a clean attempt instead of being dropped as a
// duplicate of an event that was never recorded.
func claimDurably(cached func() bool, insert func() error, mark func()) (bool, error) {
	if cached() {
		return false, nil
	}
	if err := insert(); err != nil {
		if isDuplicateKeyErr(err) {
			mark()
			return false, nil
		}
		return false, err
	}
	mark()
	return true, nil
}

func (s *gormStore) ClaimEventKey(ctx context.Context, key models.WebhookEventKey) (bool, error) {
	cacheKey := "webhook_event:" + EventKey(key.WorkspaceId, key.ObjectType, key.ObjectId, key.TimestampMicro)
	return claimDurably(
		func() bool {
			_, found, err := config.GetRedisValue(cacheKey)
			return err == nil && found
		},
		func() error {
			return s.conn().WithContext(ctx).Create(&key).Error
		},
		func() {
			_ = config.SetRedisValue(cacheKey, "1", DefaultMaxEventAge)
		},
	)
}

func (s *gormStore) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	if entry.Status == "" {
		entry.Status = models.QueueStatusPending
	}
	if entry.MaxRetries <= 0 {
		entry.MaxRetries = models.DefaultQueueMaxRetries
	}
	if entry.ScheduledAt.IsZero() {
		entry.ScheduledAt = time.Now().UTC()
	}
	return s.conn().WithContext(ctx).Create(entry).Error
}

func (s *gormStore) GetQueueEntry(ctx context.Context, workspaceId string, id uint) (*models.SyncQueueEntry, error) {
	var entry models.SyncQueueEntry
	err := s.conn().WithContext(ctx).
		Where("id = ? AND workspace_id = ?", id, workspaceId).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (s *gormStore) RequeueEntry(ctx context.Context, workspaceId string, id uint) error {
	now := time.Now().UTC()
	result := s.conn().WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ? AND workspace_id = ? AND status = ?", id, workspaceId, models.QueueStatusFailed).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusPending,
			"retry_count":  0,
			"scheduled_at": now,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
