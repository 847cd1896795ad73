package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncPermissions creates missing permissions of the action vocabulary.
	TaskSyncPermissions = "rbac:sync-permissions"
)

// SyncPermissionsPayload describes why a catalog sync was requested.
type SyncPermissionsPayload struct {
	Reason string `json:"reason"`
}

// NewSyncPermissionsTask constructs an Asynq task for the catalog sync.
func NewSyncPermissionsTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(SyncPermissionsPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncPermissions, data, asynq.Queue(QueueDefault)), nil
}
