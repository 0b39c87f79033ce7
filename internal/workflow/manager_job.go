package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wikiseed/internal/logging"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
	"wikiseed/internal/stage"
)

func withJobContext(ctx context.Context, job *queue.Job, workerID, requestID string) context.Context {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithKind(ctx, string(job.Kind))
	ctx = services.WithWorkerID(ctx, workerID)
	return services.WithRequestID(ctx, requestID)
}

func (m *Manager) processJob(ctx context.Context, lane *laneState, job *queue.Job) {
	jobCtx := withJobContext(ctx, job, m.workerID, uuid.NewString())
	logger := logging.WithContext(jobCtx, lane.logger)

	if err := m.store.Start(jobCtx, job.ID, m.workerID); err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			logger.Info("claim lost before start", logging.String(logging.FieldEventType, "claim_lost"))
			return
		}
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to start claimed job", "job_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "job stays claimed until stale reclaim"),
		)
		return
	}

	started := time.Now()
	logger.Info("job started",
		logging.String("target", job.Target),
		logging.String("group_key", job.GroupKey),
		logging.Int("attempt", job.AttemptCount+1),
		logging.Int("max_retries", job.MaxRetries),
		logging.String(logging.FieldEventType, "job_start"),
	)

	result, execErr := m.execute(jobCtx, lane, job)
	if execErr == nil {
		execErr = m.runHooks(jobCtx, job, result)
	}

	if execErr != nil && ctx.Err() != nil {
		// Shutdown, not a job failure: hand the claim back without spending an attempt.
		logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
		m.release(jobCtx, logger, job, "released on shutdown")
		return
	}
	if execErr != nil {
		m.handleFailure(context.WithoutCancel(jobCtx), logger, job, execErr)
		return
	}

	created, err := m.store.Complete(context.WithoutCancel(jobCtx), job.ID, m.workerID, result.Payload, result.FollowUps)
	if errors.Is(err, queue.ErrClaimLost) {
		logger.Info("claim lost before completion; result discarded", logging.String(logging.FieldEventType, "claim_lost"))
		return
	}
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to record job completion", "job_complete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "job will be retried after stale reclaim"),
		)
		return
	}

	logger.Info("job completed",
		logging.Int("follow_ups", len(created)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	m.setLastJob(job)
}

// execute runs the handler, with the storage watchdog attached for gated kinds.
func (m *Manager) execute(ctx context.Context, lane *laneState, job *queue.Job) (result stage.Result, err error) {
	execCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var watchers sync.WaitGroup
	if lane.gated && m.gate != nil {
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			m.gate.Watch(execCtx, cancel)
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "workflow", string(job.Kind), fmt.Sprintf("handler panic: %v", r), nil)
		}
		cancel(nil)
		watchers.Wait()
	}()

	result, err = lane.handler.Execute(execCtx, job)
	if err != nil && execCtx.Err() != nil && ctx.Err() == nil {
		// Watchdog abort: surface its cause so the failure is classified by it.
		if cause := context.Cause(execCtx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}
	return result, err
}

func (m *Manager) runHooks(ctx context.Context, job *queue.Job, result stage.Result) error {
	for _, hook := range m.hooks {
		if err := hook.AfterExecute(ctx, job, result); err != nil {
			return fmt.Errorf("completion hook: %w", err)
		}
	}
	return nil
}

// release returns an owned job to pending without counting an attempt.
func (m *Manager) release(ctx context.Context, logger *slog.Logger, job *queue.Job, reason string) {
	err := m.store.Fail(context.WithoutCancel(ctx), job.ID, m.workerID, queue.Transition{
		Status:       queue.StatusPending,
		AttemptCount: job.AttemptCount,
		Error:        reason,
	})
	if err != nil && !errors.Is(err, queue.ErrClaimLost) {
		logger.Warn("failed to release job; it will be reclaimed when stale",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
}
