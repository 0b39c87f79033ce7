package workflow

import (
	"context"

	"wikiseed/internal/logging"
	"wikiseed/internal/queue"
)

// reclaimStale returns expired claims of the lane's kind to the queue. The
// attempt is counted; jobs at their ceiling are quarantined and alerted.
func (m *Manager) reclaimStale(ctx context.Context, lane *laneState) {
	if lane.stale <= 0 {
		return
	}
	cutoff := m.now().Add(-lane.stale)
	jobs, err := m.store.ReclaimStale(ctx, lane.kind, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			m.setLastError(err)
			logging.WarnWithContext(lane.logger, "stale claim reclaim failed", "reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "expired claims stay locked until the next poll"),
			)
		}
		return
	}
	for _, job := range jobs {
		logger := lane.logger.With(logging.Int64(logging.FieldJobID, job.ID))
		if job.Status == queue.StatusQuarantined {
			logging.ErrorWithContext(logger, "stale claim quarantined at retry ceiling", "job_quarantined",
				logging.Int("attempts", job.AttemptCount),
				logging.String("target", job.Target),
				logging.Alert("quarantine"),
			)
			m.notifyQuarantine(ctx, logger, job, queue.Transition{
				Status:       job.Status,
				AttemptCount: job.AttemptCount,
				Error:        job.LastError,
			})
			continue
		}
		logger.Warn("reclaimed stale claim",
			logging.Int("attempts", job.AttemptCount),
			logging.String("target", job.Target),
			logging.String(logging.FieldEventType, "claim_reclaimed"),
		)
	}
}
