package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-auth/gatehouse/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired session audit rows from postgres.
	// The live Redis records expire on their own; this keeps the audit
	// table from growing without bound.
	TaskSessionsPurge = "sessions:purge"
	// TaskAuditTrim caps the audit log to its retention window.
	TaskAuditTrim = "audit:trim"
)

// SessionPurger deletes expired session records.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// AuditTrimmer deletes audit rows past the retention window.
type AuditTrimmer interface {
	Trim(ctx context.Context, retention time.Duration) (int64, error)
}

// NewSessionsPurgeTask constructs an Asynq task. The task carries no payload.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

type auditTrimPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// NewAuditTrimTask constructs an Asynq task carrying the retention window.
func NewAuditTrimTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(auditTrimPayload{RetentionSeconds: int64(retention.Seconds())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditTrim, data), nil
}

// HandleSessionsPurge returns the handler processing TaskSessionsPurge tasks.
func HandleSessionsPurge(purger SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskSessionsPurge)
		purged, err := purger.PurgeExpiredSessions(ctx)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("purged expired sessions", slog.Int64("count", purged))
		}
		return tracker.End(nil)
	}
}

// HandleAuditTrim returns the handler processing TaskAuditTrim tasks.
func HandleAuditTrim(trimmer AuditTrimmer, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload auditTrimPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskAuditTrim)
		trimmed, err := trimmer.Trim(ctx, time.Duration(payload.RetentionSeconds)*time.Second)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("trimmed audit log", slog.Int64("count", trimmed))
		}
		return tracker.End(nil)
	}
}
