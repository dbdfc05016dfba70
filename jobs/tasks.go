package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/uhmwpe-lab/labdata/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge deletes login sessions whose expiry has passed.
	TaskSessionPurge = "sessions:purge"
)

// SessionPurgePayload optionally keeps expired rows for a grace period.
type SessionPurgePayload struct {
	GraceSeconds int `json:"grace_seconds,omitempty"`
}

// NewSessionPurgeTask constructs the purge task.
func NewSessionPurgeTask(payload SessionPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}

// SessionPurger removes expired session rows and reports how many went.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionPurgeJob handles TaskSessionPurge.
type SessionPurgeJob struct {
	Sessions SessionPurger
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewSessionPurgeJob wires dependencies for the purge handler.
func NewSessionPurgeJob(sessions SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionPurgeJob{
		Sessions: sessions,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sessions == nil {
		return errors.New("session purge: handler not configured")
	}
	var payload SessionPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskSessionPurge)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.clock().Add(-time.Duration(payload.GraceSeconds) * time.Second)
	n, err := j.Sessions.PurgeExpiredSessions(ctx, cutoff)
	if err != nil {
		j.Logger.Error("session purge failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurgedSessions(n)
	j.Logger.Info("session purge complete", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return nil
}
