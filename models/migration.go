package models

import (
	"log"

	"github.com/mmdatafocus/automation_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&IntegrationProvider{}, &WorkspaceIntegration{},
		&IntegrationAutomation{}, &ExecutionLog{},
		&WebhookEventKey{},
		&SyncQueueEntry{},
		&FieldMapping{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
