package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WebhookMeta is the envelope every inbound webhook must carry.
// Timestamp is in seconds; TimestampMicro, when present, disambiguates
// multiple events touching the same object within one second.
type WebhookMeta struct {
	Action         string      `json:"action"`
	Object         string      `json:"object"`
	Id             interface{} `json:"id"`
	Timestamp      int64       `json:"timestamp"`
	TimestampMicro int64       `json:"timestamp_micro,omitempty"`
}

// WebhookPayload is the generic inbound event shape. Update events carry
// current/previous snapshots; replayed events carry retry_object instead.
type WebhookPayload struct {
	Meta        *WebhookMeta           `json:"meta"`
	Current     map[string]interface{} `json:"current,omitempty"`
	Previous    map[string]interface{} `json:"previous,omitempty"`
	RetryObject map[string]interface{} `json:"retry_object,omitempty"`
}

// ObjectId renders meta.id as a stable string regardless of whether the
// sender encoded it as a JSON number or string.
func (m *WebhookMeta) ObjectId() string {
	if m == nil || m.Id == nil {
		return ""
	}
	switch v := m.Id.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// EventName normalizes an inbound webhook into the trigger-event key
// automations are registered against, e.g. "person.updated".
func (m *WebhookMeta) EventName() string {
	return m.Object + "." + m.Action
}

// EventData picks the snapshot automations should see: the current state for
// live events, the replayed object for retries.
func (p *WebhookPayload) EventData() map[string]interface{} {
	if p.Current != nil {
		return p.Current
	}
	if p.RetryObject != nil {
		return p.RetryObject
	}
	return map[string]interface{}{}
}

type ConnectRequest struct {
	ProviderId uint                   `json:"providerId" validate:"required"`
	AuthData   map[string]interface{} `json:"authData"`
	Settings   map[string]interface{} `json:"settings"`
}

type TestRequest struct {
	ProviderId uint `json:"providerId" validate:"required"`
}

type ManualRunRequest struct {
	EventData map[string]interface{} `json:"eventData"`
}

type IntegrationStatusResponse struct {
	ProviderId        uint    `json:"providerId"`
	ProviderName      string  `json:"providerName"`
	SyncStatus        string  `json:"syncStatus"`
	TotalExecutions   int64   `json:"totalExecutions"`
	MonthlyExecutions int64   `json:"monthlyExecutions"`
	LastError         *string `json:"lastError"`
	LastSuccessAt     *string `json:"lastSuccessAt"`
}

type TriggerResponse struct {
	Executed int `json:"executed"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type QueuePubSubPayload struct {
	EntryId     uint   `json:"entry_id"`
	WorkspaceId string `json:"workspace_id"`
}
