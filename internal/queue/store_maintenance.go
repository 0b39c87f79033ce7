package queue

import (
	"context"
	"fmt"
)

// Stats returns job counts grouped by kind and status.
func (s *Store) Stats(ctx context.Context) (map[Kind]map[Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT kind, status, COUNT(1) FROM jobs GROUP BY kind, status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Kind]map[Status]int)
	for rows.Next() {
		var (
			kind   Kind
			status Status
			count  int
		)
		if err := rows.Scan(&kind, &status, &count); err != nil {
			return nil, err
		}
		if stats[kind] == nil {
			stats[kind] = make(map[Status]int)
		}
		stats[kind][status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for _, byStatus := range stats {
		for status, count := range byStatus {
			health.Total += count
			switch status {
			case StatusPending:
				health.Pending += count
			case StatusClaimed, StatusRunning:
				health.InFlight += count
			case StatusCompleted:
				health.Completed += count
			case StatusFailed:
				health.Failed += count
			case StatusQuarantined:
				health.Quarantined += count
			}
		}
	}

	_, timestamp := s.timestamp()
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(1) FROM jobs WHERE status = ? AND next_eligible_at IS NOT NULL AND next_eligible_at > ?`,
		StatusPending, timestamp,
	).Scan(&health.Deferred); err != nil {
		return HealthSummary{}, fmt.Errorf("count deferred jobs: %w", err)
	}
	return health, nil
}
