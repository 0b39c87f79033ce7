package admission

import (
	"context"
	"time"

	"wikiseed/internal/logging"
)

// Watch re-probes storage every check interval while a gated job executes and
// calls cancel with ErrSafetyMargin once free space falls below the safety
// margin. It returns when ctx is done or after cancelling.
func (c *Controller) Watch(ctx context.Context, cancel context.CancelCauseFunc) {
	margin := c.cfg.SafetyMarginBytes()
	if !c.cfg.Admission.Enabled || margin == 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, c.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		usage, err := c.Usage()
		if err != nil {
			logger.Debug("safety probe failed", logging.Error(err))
			continue
		}
		if usage.FreeBytes >= margin {
			continue
		}
		logging.WarnWithContext(logger, "safety margin breached; aborting job", "admission_safety_abort",
			logging.Uint64("free_bytes", usage.FreeBytes),
			logging.Uint64("margin_bytes", margin),
			logging.String(logging.FieldErrorHint, "cleanup will run before the job is retried"),
			logging.String(logging.FieldImpact, "job is checkpointed as a transient failure"),
		)
		cancel(ErrSafetyMargin)
		return
	}
}
