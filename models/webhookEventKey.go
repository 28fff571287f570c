package models

import "time"

// WebhookEventKey is the durable set of previously seen event identities.
// Upstream webhook senders retry on ambiguous delivery outcomes, so the same
// physical event may arrive multiple times; the unique constraint over
// (workspace_id, object_type, object_id, timestamp_micro) makes the insert an
// atomic claim.
type WebhookEventKey struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	WorkspaceId    string    `gorm:"size:64;not null;index:uniq_event_key,unique" json:"workspace_id"`
	ObjectType     string    `gorm:"size:64;not null;index:uniq_event_key,unique" json:"object_type"`
	ObjectId       string    `gorm:"size:128;not null;index:uniq_event_key,unique" json:"object_id"`
	TimestampMicro int64     `gorm:"not null;index:uniq_event_key,unique" json:"timestamp_micro"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
