package automation

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/automation_backend/models"
)

// DefaultMaxEventAge bounds how old an inbound event may be before it is
// dropped as stale, so an outage does not replay ancient history.
const DefaultMaxEventAge = 24 * time.Hour

// EventKey derives the deterministic identity used to detect redelivery.
// When the sender supplies no microsecond timestamp, the second-resolution
// one is widened so identical tuples still collide.
func EventKey(workspaceId, objectType, objectId string, timestampMicro int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", workspaceId, objectType, objectId, timestampMicro)
}

// EventKeyRecord builds the durable idempotency row for an inbound webhook.
func EventKeyRecord(workspaceId string, meta *WebhookMeta) models.WebhookEventKey {
	micro := meta.TimestampMicro
	if micro == 0 {
		micro = meta.Timestamp * 1_000_000
	}
	return models.WebhookEventKey{
		WorkspaceId:    workspaceId,
		ObjectType:     meta.Object,
		ObjectId:       meta.ObjectId(),
		TimestampMicro: micro,
	}
}

// IsStale reports whether the event's timestamp is older than maxAge.
func IsStale(meta *WebhookMeta, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxEventAge
	}
	eventTime := time.Unix(meta.Timestamp, 0)
	return now.Sub(eventTime) > maxAge
}
