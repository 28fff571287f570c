package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/automation_backend/config"
	"github.com/mmdatafocus/automation_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueDispatcher polls the sync queue and drives entry execution through
// the engine. Claims use SELECT ... FOR UPDATE SKIP LOCKED so multiple
// dispatcher replicas never double-claim, and a per-workspace Redis lock
// keeps one workspace's retries from interleaving across replicas.
type QueueDispatcher struct {
	DB           *gorm.DB
	Engine       *Engine
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	LockTimeout  time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func NewQueueDispatcher(db *gorm.DB, engine *Engine, logger *logrus.Logger) *QueueDispatcher {
	d := &QueueDispatcher{
		DB:           db,
		Engine:       engine,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		PollInterval: 500 * time.Millisecond,
		LockTimeout:  60 * time.Second,
		BaseBackoff:  5 * time.Second,
		MaxBackoff:   10 * time.Minute,
	}
	if v := os.Getenv("SYNC_QUEUE_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.BaseBackoff = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SYNC_QUEUE_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.MaxBackoff = time.Duration(n) * time.Second
		}
	}
	return d
}

func (d *QueueDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *QueueDispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.SyncQueueEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - pending and due
		// - failed with retries left and due
		// - processing with a stale lock (dispatcher crashed mid-batch)
		q := tx.
			Where(`
				(
					status = ? AND scheduled_at <= ?
				)
				OR
				(
					status = ? AND retry_count < max_retries AND scheduled_at <= ?
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, models.QueueStatusPending, now, models.QueueStatusFailed, now, models.QueueStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = models.QueueStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			if err := tx.Model(&models.SyncQueueEntry{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":    models.QueueStatusProcessing,
				"locked_at": &now,
				"locked_by": &d.DispatcherID,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for i := range claimed {
		d.processEntry(ctx, &claimed[i])
	}
}

// ProcessPushed claims one specific pending entry (Pub/Sub push path) and
// runs it. Entries already claimed elsewhere, or not yet due, are skipped;
// the poll loop will reach them.
func (d *QueueDispatcher) ProcessPushed(ctx context.Context, workspaceId string, entryId uint) error {
	db := d.DB
	if db == nil {
		// Push arrived before the database connected; the poll loop
		// picks the entry up once it has.
		return nil
	}
	now := time.Now().UTC()
	var entry models.SyncQueueEntry
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("id = ? AND workspace_id = ? AND status = ? AND scheduled_at <= ?",
				entryId, workspaceId, models.QueueStatusPending, now).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.First(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.SyncQueueEntry{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
			"status":    models.QueueStatusProcessing,
			"locked_at": &now,
			"locked_by": &d.DispatcherID,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	entry.Status = models.QueueStatusProcessing
	entry.LockedAt = &now
	entry.LockedBy = &d.DispatcherID
	d.processEntry(ctx, &entry)
	return nil
}

func (d *QueueDispatcher) processEntry(ctx context.Context, entry *models.SyncQueueEntry) {
	// Serialize per workspace so ordered retries from one tenant do not
	// interleave across dispatcher replicas.
	release := d.acquireWorkspaceLock(ctx, entry.WorkspaceId)
	if release == nil {
		// Lock contention is not a failed attempt; put the entry back.
		d.unclaim(ctx, entry)
		return
	}
	defer release()

	procErr := d.Engine.ProcessQueueEntry(ctx, entry)
	if procErr == nil {
		d.markCompleted(ctx, entry)
		return
	}
	// Configuration errors are terminal: retrying cannot fix a deleted
	// automation or a broken action config.
	d.reschedule(ctx, entry, procErr.Error(), IsConfigurationError(procErr))
}

// acquireWorkspaceLock returns a release func, or nil when the lock is held
// elsewhere. Without Redis it degrades to no locking (single-replica mode).
func (d *QueueDispatcher) acquireWorkspaceLock(ctx context.Context, workspaceId string) func() {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, "sync_queue:workspace:"+workspaceId, d.LockTimeout, nil)
	if err != nil {
		if err == redislock.ErrNotObtained {
			return nil
		}
		// Redis trouble should not halt the queue.
		return func() {}
	}
	return func() { _ = lock.Release(context.Background()) }
}

func (d *QueueDispatcher) markCompleted(ctx context.Context, entry *models.SyncQueueEntry) {
	now := time.Now().UTC()
	_ = d.DB.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusCompleted,
			"completed_at": &now,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"module":       "QueueDispatcher",
			"workspace_id": entry.WorkspaceId,
			"entry_id":     entry.ID,
			"operation":    entry.Operation,
		}).Info("sync queue entry completed")
	}
}

// unclaim returns a contended entry to pending without burning a retry.
func (d *QueueDispatcher) unclaim(ctx context.Context, entry *models.SyncQueueEntry) {
	next := time.Now().UTC().Add(d.PollInterval)
	_ = d.DB.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusPending,
			"scheduled_at": next,
			"locked_at":    nil,
			"locked_by":    nil,
		}).Error
}

// reschedule records a failed pass. Entries that exhaust retries (or hit a
// terminal error) stay in `failed` with no further automatic attempts; they
// remain inspectable for manual replay.
func (d *QueueDispatcher) reschedule(ctx context.Context, entry *models.SyncQueueEntry, errMsg string, terminal bool) {
	now := time.Now().UTC()
	attempts := entry.RetryCount + 1

	updates := map[string]interface{}{
		"status":      models.QueueStatusFailed,
		"retry_count": attempts,
		"last_error":  &errMsg,
		"locked_at":   nil,
		"locked_by":   nil,
	}
	exhausted := terminal || attempts >= entry.MaxRetries
	if !exhausted {
		next := now.Add(backoffDelay(attempts, d.BaseBackoff, d.MaxBackoff))
		updates["scheduled_at"] = next
	}
	if terminal {
		// Pin retry_count at the cap so the claim query never picks it up.
		updates["retry_count"] = entry.MaxRetries
	}

	_ = d.DB.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ?", entry.ID).
		Updates(updates).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"module":       "QueueDispatcher",
			"workspace_id": entry.WorkspaceId,
			"entry_id":     entry.ID,
			"operation":    entry.Operation,
			"retry_count":  attempts,
			"terminal":     exhausted,
		}).Error(fmt.Sprintf("sync queue entry failed: %s", errMsg))
	}
}
