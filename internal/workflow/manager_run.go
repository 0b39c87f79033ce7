package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"wikiseed/internal/logging"
	"wikiseed/internal/services"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	lanes := make([]*laneState, 0, len(m.laneOrder))
	for _, kind := range m.laneOrder {
		if lane := m.lanes[kind]; lane != nil {
			lanes = append(lanes, lane)
		}
	}
	if len(lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, lane := range lanes {
		lane.logger = m.laneLogger(lane)
	}
	m.wg.Add(len(lanes))
	m.mu.Unlock()

	for _, lane := range lanes {
		go m.runLane(runCtx, lane)
	}
	m.logger.Info("workflow started",
		logging.String(logging.FieldWorkerID, m.workerID),
		logging.Int("lanes", len(lanes)),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Run starts the lanes and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Manager) runLane(ctx context.Context, lane *laneState) {
	defer m.wg.Done()
	logger := lane.logger

	for {
		if ctx.Err() != nil {
			return
		}

		m.reclaimStale(ctx, lane)

		if lane.gated && m.gate != nil {
			allowed, band, err := m.gate.Evaluate(ctx)
			if err != nil {
				m.handleStoreError(ctx, logger, "admission check failed", err)
				continue
			}
			if !allowed {
				logger.Debug("admission paused; not claiming", logging.String("band", string(band)))
				m.wait(ctx, lane.poll)
				continue
			}
		}

		jobs, err := m.store.ClaimNext(ctx, lane.kind, m.workerID, lane.batch)
		if err != nil {
			m.handleStoreError(ctx, logger, "claim failed", err)
			continue
		}
		if len(jobs) == 0 {
			m.wait(ctx, lane.poll)
			continue
		}

		for i, job := range jobs {
			if ctx.Err() != nil {
				for _, rest := range jobs[i:] {
					m.release(ctx, logger, rest, "released on shutdown before start")
				}
				return
			}
			m.processJob(ctx, lane, job)
		}
	}
}

func (m *Manager) handleStoreError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if ctx.Err() != nil || services.IsCancellation(err) {
		return
	}
	m.setLastError(err)
	logging.ErrorWithContext(logger, msg, "store_error",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check database access and storage probe"),
	)
	m.wait(ctx, time.Duration(m.cfg.Workers.ErrorRetryInterval)*time.Second)
}

// wait sleeps for d with +/- poll_jitter applied, or until ctx is done.
func (m *Manager) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(jitter(d, m.cfg.Workers.PollJitter))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	factor := 1 + fraction*(2*rand.Float64()-1)
	return time.Duration(float64(d) * factor)
}
