package models

import "time"

const (
	AuthTypeOAuth2  = "oauth2"
	AuthTypeAPIKey  = "api_key"
	AuthTypeWebhook = "webhook"
	AuthTypeNone    = "none"
)

const (
	SyncStatusActive       = "active"
	SyncStatusError        = "error"
	SyncStatusPaused       = "paused"
	SyncStatusDisconnected = "disconnected"
)

// IntegrationProvider is catalog reference data. Rows are created and updated
// by administrators; the engine only reads them.
type IntegrationProvider struct {
	ID                   uint      `gorm:"primary_key" json:"id"`
	Name                 string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Category             string    `gorm:"size:50" json:"category"`
	AuthType             string    `gorm:"size:20;not null" json:"auth_type"`
	SupportedEventsJSON  []byte    `gorm:"type:json" json:"supported_events"`
	SupportedActionsJSON []byte    `gorm:"type:json" json:"supported_actions"`
	IsActive             bool      `gorm:"default:true" json:"is_active"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// WorkspaceIntegration is one tenant's configured instance of a provider.
// Mutated by connection tests and execution outcomes only.
type WorkspaceIntegration struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	WorkspaceId       string     `gorm:"uniqueIndex:idx_workspace_provider,priority:1;size:64;not null" json:"workspace_id"`
	ProviderId        uint       `gorm:"uniqueIndex:idx_workspace_provider,priority:2;not null" json:"provider_id"`
	AuthDataJSON      []byte     `gorm:"type:json" json:"auth_data"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	SyncStatus        string     `gorm:"size:20;not null;default:'active'" json:"sync_status"`
	TotalExecutions   int64      `gorm:"not null;default:0" json:"total_executions"`
	MonthlyExecutions int64      `gorm:"not null;default:0" json:"monthly_executions"`
	LastError         *string    `gorm:"type:text" json:"last_error"`
	LastSuccessAt     *time.Time `json:"last_success_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
