package models

import "time"

const (
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"

	// ExecutionStatusRunning is the non-terminal state between inserting the
	// log row and recording the provider call's outcome. The row is written
	// before the call so the audit trail survives a crash mid-delivery.
	ExecutionStatusRunning = "running"
)

// IntegrationAutomation is a stored rule: trigger event + flat equality
// conditions -> provider action. Created and edited by workspace operators;
// the engine only touches counter and status fields.
type IntegrationAutomation struct {
	ID                    uint       `gorm:"primary_key" json:"id"`
	WorkspaceId           string     `gorm:"index;size:64;not null" json:"workspace_id"`
	Name                  string     `gorm:"size:255" json:"name"`
	TriggerEvent          string     `gorm:"index;size:100;not null" json:"trigger_event"`
	TriggerConditionsJSON []byte     `gorm:"type:json" json:"trigger_conditions"`
	ActionProviderId      uint       `gorm:"not null" json:"action_provider_id"`
	ActionType            string     `gorm:"size:100;not null" json:"action_type"`
	ActionConfigJSON      []byte     `gorm:"type:json" json:"action_config"`
	ExecutionOrder        int        `gorm:"not null;default:0" json:"execution_order"`
	IsActive              bool       `gorm:"default:true" json:"is_active"`
	TotalExecutions       int64      `gorm:"not null;default:0" json:"total_executions"`
	SuccessfulExecutions  int64      `gorm:"not null;default:0" json:"successful_executions"`
	FailedExecutions      int64      `gorm:"not null;default:0" json:"failed_executions"`
	LastError             *string    `gorm:"type:text" json:"last_error"`
	LastRunAt             *time.Time `json:"last_run_at"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExecutionLog is the append-only audit trail: one row per automation attempt,
// success or failure. Never mutated after completion.
type ExecutionLog struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	AutomationId *uint      `gorm:"index" json:"automation_id"`
	WorkspaceId  string     `gorm:"index;size:64;not null" json:"workspace_id"`
	ProviderId   uint       `gorm:"index" json:"provider_id"`
	TriggerEvent string     `gorm:"size:100" json:"trigger_event"`
	ActionType   string     `gorm:"size:100" json:"action_type"`
	Status       string     `gorm:"size:20;not null" json:"status"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message"`
	DurationMs   int64      `json:"duration_ms"`
	StartedAt    time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
