package models

import "time"

// Sync queue statuses for SyncQueueEntry.Status.
// Keep these as strings (DB values).
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusFailed     = "failed"
	QueueStatusCompleted  = "completed"
)

const DefaultQueueMaxRetries = 3

// SyncQueueEntry is a pending operation awaiting execution or retry. Entries
// that exhaust retries stay in `failed` for manual replay; they are never
// retried automatically again.
type SyncQueueEntry struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	WorkspaceId  string     `gorm:"index;size:64;not null" json:"workspace_id"`
	Operation    string     `gorm:"size:100;not null" json:"operation"`
	PayloadJSON  []byte     `gorm:"type:json" json:"payload"`
	Status       string     `gorm:"index;size:20;not null;default:'pending'" json:"status"`
	RetryCount   int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int        `gorm:"not null;default:3" json:"max_retries"`
	ScheduledAt  time.Time  `gorm:"index;not null" json:"scheduled_at"`
	LockedAt     *time.Time `json:"locked_at"`
	LockedBy     *string    `gorm:"size:64" json:"locked_by"`
	LastError    *string    `gorm:"type:text" json:"last_error"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
