package workflow

import (
	"context"

	"wikiseed/internal/queue"
	"wikiseed/internal/stage"
)

// StatusSummary exposes the worker's runtime state.
type StatusSummary struct {
	Running       bool
	WorkerID      string
	LastError     string
	LastJob       *queue.Job
	QueueStats    map[queue.Kind]map[queue.Status]int
	QueueHealth   queue.HealthSummary
	HandlerHealth map[queue.Kind]stage.Health
}

// Status returns the current workflow status, including handler readiness.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		WorkerID: m.workerID,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		snapshot := *m.lastJob
		summary.LastJob = &snapshot
	}
	handlers := make(map[queue.Kind]stage.Handler, len(m.lanes))
	for kind, lane := range m.lanes {
		handlers[kind] = lane.handler
	}
	m.mu.RUnlock()

	if stats, err := m.store.Stats(ctx); err == nil {
		summary.QueueStats = stats
	}
	if health, err := m.store.Health(ctx); err == nil {
		summary.QueueHealth = health
	}
	summary.HandlerHealth = make(map[queue.Kind]stage.Health, len(handlers))
	for kind, handler := range handlers {
		summary.HandlerHealth[kind] = handler.HealthCheck(ctx)
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	m.lastJob = job
	m.mu.Unlock()
}
