package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// eligibilitySQL is the dependency predicate over a jobs row aliased j. A
// child waits for its parent to complete. A barrier waits until no other
// non-barrier job in its group is still outside {completed, quarantined};
// parked (failed) siblings keep the barrier closed.
const eligibilitySQL = `(j.parent_id IS NULL OR EXISTS (
        SELECT 1 FROM jobs p WHERE p.id = j.parent_id AND p.status = 'completed'))
    AND (j.barrier = 0 OR NOT EXISTS (
        SELECT 1 FROM jobs s
        WHERE s.group_key = j.group_key AND s.id <> j.id AND s.barrier = 0
          AND s.status NOT IN ('completed', 'quarantined')))`

// IsEligible reports whether the job's dependencies are satisfied. It does not
// consider status or backoff, only the parent and barrier rules the claim
// applies.
func (s *Store) IsEligible(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM jobs j WHERE j.id = ? AND `+eligibilitySQL, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return true, nil
}

// BlockingJobs returns the jobs currently holding id back: its unfinished
// parent, or the open siblings of a barrier.
func (s *Store) BlockingJobs(ctx context.Context, id int64) ([]*Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var blockers []*Job
	if job.ParentID > 0 {
		parent, err := s.Get(ctx, job.ParentID)
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		if parent != nil && parent.Status != StatusCompleted {
			blockers = append(blockers, parent)
		}
	}
	if job.Barrier && job.GroupKey != "" {
		rows, err := s.db.Query(ctx,
			`SELECT `+jobColumns+` FROM jobs
             WHERE group_key = ? AND id <> ? AND barrier = 0 AND status NOT IN ('completed', 'quarantined')
             ORDER BY created_at, id`,
			job.GroupKey, job.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("list barrier siblings: %w", err)
		}
		siblings, err := scanJobs(rows)
		if err != nil {
			return nil, err
		}
		blockers = append(blockers, siblings...)
	}
	return blockers, nil
}
