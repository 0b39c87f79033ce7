package workflow

import (
	"context"
	"errors"
	"log/slog"

	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
)

func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, job *queue.Job, execErr error) {
	transition := m.policy.OnFailure(job, execErr, m.now())
	m.setLastError(execErr)

	if err := m.store.Fail(ctx, job.ID, m.workerID, transition); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			logger.Info("claim lost before failure was recorded", logging.String(logging.FieldEventType, "claim_lost"))
			return
		}
		logging.ErrorWithContext(logger, "failed to record job failure", "job_fail_failed",
			logging.Error(err),
			logging.String("job_error", transition.Error),
			logging.String(logging.FieldErrorHint, "job will be retried after stale reclaim"),
		)
		return
	}

	if transition.Status == queue.StatusQuarantined {
		logging.ErrorWithContext(logger, "job quarantined", "job_quarantined",
			logging.String("class", string(services.Classify(execErr))),
			logging.Int("attempts", transition.AttemptCount),
			logging.Error(execErr),
			logging.String(logging.FieldErrorHint, "inspect with `wikiseed queue show` then requeue"),
			logging.Alert("quarantine"),
		)
		m.notifyQuarantine(ctx, logger, job, transition)
		return
	}

	logging.WarnWithContext(logger, "job attempt failed; retrying after backoff", "job_retry_scheduled",
		logging.Int("attempts", transition.AttemptCount),
		logging.Int("max_retries", job.MaxRetries),
		logging.Duration("backoff", transition.NextEligibleAt.Sub(m.now())),
		logging.String("next_eligible_at", transition.NextEligibleAt.UTC().Format("2006-01-02T15:04:05Z")),
		logging.Error(execErr),
	)
}

func (m *Manager) notifyQuarantine(ctx context.Context, logger *slog.Logger, job *queue.Job, transition queue.Transition) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventJobQuarantined, notifications.Payload{
		"job_id":   job.ID,
		"kind":     string(job.Kind),
		"attempts": transition.AttemptCount,
		"target":   job.Target,
		"error":    transition.Error,
	})
	if err != nil {
		logger.Warn("quarantine notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and network access"),
		)
	}
}
