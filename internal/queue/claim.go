package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ClaimNext atomically claims up to batch eligible pending jobs of kind for
// owner. Selection and transition are one UPDATE statement inside an
// immediate transaction, so concurrent callers receive disjoint (possibly
// empty) sets and never an error for losing the race.
func (s *Store) ClaimNext(ctx context.Context, kind Kind, owner string, batch int) ([]*Job, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: claim requires an owner", ErrInvalidJob)
	}
	if batch <= 0 {
		batch = 1
	}

	var claimed []*Job
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		_, timestamp := s.timestamp()
		rows, err := tx.QueryContext(ctx,
			`UPDATE jobs SET status = ?, owner = ?, claimed_at = ?, updated_at = ?
             WHERE id IN (
                 SELECT j.id FROM jobs j
                 WHERE j.kind = ? AND j.status = 'pending'
                   AND (j.next_eligible_at IS NULL OR j.next_eligible_at <= ?)
                   AND `+eligibilitySQL+`
                 ORDER BY j.created_at, j.id
                 LIMIT ?)
               AND status = 'pending'
             RETURNING `+jobColumns,
			StatusClaimed, owner, timestamp, timestamp,
			kind, timestamp, batch,
		)
		if err != nil {
			return err
		}
		claimed, err = scanJobs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s jobs: %w", kind, err)
	}
	sortFIFO(claimed)
	return claimed, nil
}

// ReclaimStale treats claims of kind older than cutoff as failed attempts.
// Each returns to pending with its attempt counted, or is quarantined once
// the ceiling is reached. Any later transition by the previous owner fails
// with ErrClaimLost. The ceiling test matches retry.Exhausted.
func (s *Store) ReclaimStale(ctx context.Context, kind Kind, cutoff time.Time) ([]*Job, error) {
	var reclaimed []*Job
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		reclaimed = nil
		_, timestamp := s.timestamp()
		rows, err := tx.QueryContext(ctx,
			`UPDATE jobs
             SET attempt_count = attempt_count + 1,
                 status = CASE WHEN attempt_count + 1 >= max_retries THEN 'quarantined' ELSE 'pending' END,
                 quarantined_at = CASE WHEN attempt_count + 1 >= max_retries THEN ? ELSE NULL END,
                 last_error = 'claim expired (owner ' || COALESCE(owner, '?') || ')',
                 owner = NULL, claimed_at = NULL, started_at = NULL, next_eligible_at = NULL,
                 updated_at = ?
             WHERE kind = ? AND status IN ('claimed', 'running') AND claimed_at < ?
             RETURNING `+jobColumns,
			timestamp, timestamp, kind, nullableTime(cutoff.UTC()),
		)
		if err != nil {
			return err
		}
		reclaimed, err = scanJobs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reclaim stale %s jobs: %w", kind, err)
	}
	sortFIFO(reclaimed)
	return reclaimed, nil
}
