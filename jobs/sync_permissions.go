package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-gateway/internal/jobs"
)

// CatalogSyncer creates the missing permissions of the action vocabulary.
type CatalogSyncer interface {
	SyncPermissionCatalog(ctx context.Context) (int, error)
}

// SyncPermissionsJob handles TaskSyncPermissions.
type SyncPermissionsJob struct {
	syncer  CatalogSyncer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSyncPermissionsJob constructs the job. metrics may be nil.
func NewSyncPermissionsJob(syncer CatalogSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncPermissionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncPermissionsJob{syncer: syncer, logger: logger, metrics: metrics}
}

// Handle processes a sync task.
func (j *SyncPermissionsJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SyncPermissionsPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode %s payload: %v: %w", TaskSyncPermissions, err, asynq.SkipRetry)
		}
	}
	tracker := j.metrics.Track(TaskSyncPermissions)
	created, err := j.syncer.SyncPermissionCatalog(ctx)
	if err != nil {
		j.logger.Error("permission sync failed", slog.String("reason", payload.Reason), slog.Any("error", err))
		return tracker.End(fmt.Errorf("jobs: sync permissions: %w", err))
	}
	j.metrics.AddSyncedPermissions(created)
	j.logger.Info("permission sync finished", slog.String("reason", payload.Reason), slog.Int("created", created))
	return tracker.End(nil)
}
