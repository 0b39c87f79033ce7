package workflow

import (
	"log/slog"
	"time"

	"wikiseed/internal/logging"
	"wikiseed/internal/queue"
	"wikiseed/internal/stage"
)

type laneState struct {
	kind    queue.Kind
	handler stage.Handler
	logger  *slog.Logger
	gated   bool
	batch   int
	poll    time.Duration
	stale   time.Duration
}

func (m *Manager) newLane(kind queue.Kind, handler stage.Handler) *laneState {
	policy := m.cfg.Kind(string(kind))
	poll := m.cfg.PollInterval(string(kind))
	if m.poll > 0 {
		poll = m.poll
	}
	batch := policy.BatchSize
	if batch <= 0 {
		batch = 1
	}
	return &laneState{
		kind:    kind,
		handler: handler,
		gated:   m.cfg.IsGatedKind(string(kind)),
		batch:   batch,
		poll:    poll,
		stale:   m.cfg.StaleClaimThreshold(string(kind)),
	}
}

func (m *Manager) laneLogger(lane *laneState) *slog.Logger {
	return logging.ForKind(m.logger, m.cfg, string(lane.kind)).With(
		logging.String(logging.FieldWorkerID, m.workerID),
	)
}
