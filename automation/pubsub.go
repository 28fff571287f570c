package automation

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/mmdatafocus/automation_backend/config"
	"github.com/sirupsen/logrus"

	"github.com/gin-gonic/gin"
)

// PublishQueueEntry announces a freshly enqueued sync entry so push-based
// consumers can pick it up without waiting for the next dispatcher poll.
// Publishing is best effort: the dispatcher will find the entry either way.
func PublishQueueEntry(ctx context.Context, entryId uint, workspaceId string) error {
	payload := QueuePubSubPayload{
		EntryId:     entryId,
		WorkspaceId: workspaceId,
	}
	_, err := config.PublishQueueEntryWithResult(ctx, payload)
	return err
}

// PubSubPushHandler handles Pub/Sub push deliveries for queue entries.
// Always answers 204: a non-2xx would make Pub/Sub redeliver, and the
// dispatcher poll loop already covers entries a push fails to process.
func PubSubPushHandler(dispatcher *QueueDispatcher, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_QUEUE_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload QueuePubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.EntryId == 0 || payload.WorkspaceId == "" {
			c.Status(204)
			return
		}

		if err := dispatcher.ProcessPushed(c.Request.Context(), payload.WorkspaceId, payload.EntryId); err != nil && logger != nil {
			logger.WithFields(logrus.Fields{
				"module":       "PubSubPushHandler",
				"entry_id":     payload.EntryId,
				"workspace_id": payload.WorkspaceId,
			}).Warn(err.Error())
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
