package models

import "time"

// FieldMapping declares a correspondence between a field in one schema and a
// field in another. Source and target fields are dot-paths; the optional
// transformation descriptor is decoded by the automation package.
type FieldMapping struct {
	ID                 uint      `gorm:"primary_key" json:"id"`
	WorkspaceId        string    `gorm:"index;size:64;not null" json:"workspace_id"`
	IntegrationId      uint      `gorm:"index;not null" json:"integration_id"`
	SourceSystem       string    `gorm:"size:50;not null" json:"source_system"`
	TargetSystem       string    `gorm:"size:50;not null" json:"target_system"`
	SourceField        string    `gorm:"size:255;not null" json:"source_field"`
	TargetField        string    `gorm:"size:255;not null" json:"target_field"`
	TransformationJSON []byte    `gorm:"type:json" json:"transformation"`
	SortOrder          int       `gorm:"not null;default:0" json:"sort_order"`
	IsActive           bool      `gorm:"default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
