package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmdatafocus/automation_backend/models"
)

type queuePayload struct {
	AutomationId uint                   `json:"automation_id"`
	EventData    map[string]interface{} `json:"event_data"`
	LastError    string                 `json:"last_error,omitempty"`
}

// ProcessQueueEntry executes one claimed sync-queue entry. Retry scheduling
// belongs to the dispatcher; this path makes a single delivery attempt per
// pass (each attempt still gets its own execution log row).
func (e *Engine) ProcessQueueEntry(ctx context.Context, entry *models.SyncQueueEntry) error {
	switch entry.Operation {
	case OpExecuteAutomation:
		var payload queuePayload
		if err := json.Unmarshal(entry.PayloadJSON, &payload); err != nil {
			return &ConfigurationError{Reason: "malformed queue payload: " + err.Error()}
		}
		a, err := e.store.GetAutomation(ctx, entry.WorkspaceId, payload.AutomationId)
		if err != nil {
			return err
		}
		if a == nil {
			return &ConfigurationError{Reason: fmt.Sprintf("automation %d no longer exists", payload.AutomationId)}
		}
		if !a.IsActive {
			return &ConfigurationError{Reason: fmt.Sprintf("automation %d was deactivated", payload.AutomationId)}
		}
		return e.executeAutomation(ctx, a, payload.EventData, false)
	default:
		return &ConfigurationError{Reason: "unknown queue operation " + entry.Operation}
	}
}
