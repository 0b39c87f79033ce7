package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Start marks a claimed job as running. Only the owner may start it.
func (s *Store) Start(ctx context.Context, id int64, owner string) error {
	_, timestamp := s.timestamp()
	res, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND owner = ? AND status = ?`,
		StatusRunning, timestamp, timestamp, id, owner, StatusClaimed,
	)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return requireAffected(res, id)
}

// Complete records the result of an owned job and enqueues its follow-ups in
// the same transaction, so a barrier never observes the group between the two.
// Follow-ups default to parent_id = id and inherit the job's group key. A
// follow-up whose exclusive target is already in flight is skipped. The ids
// of the inserted follow-ups are returned.
func (s *Store) Complete(ctx context.Context, id int64, owner string, result map[string]any, followUps []NewJob) ([]int64, error) {
	encoded, err := encodeObject(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	var created []int64
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		created = nil
		var groupKey sql.NullString
		scanErr := tx.QueryRowContext(ctx,
			`SELECT group_key FROM jobs WHERE id = ? AND owner = ? AND status IN (?, ?)`,
			id, owner, StatusClaimed, StatusRunning,
		).Scan(&groupKey)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return fmt.Errorf("%w: job %d", ErrClaimLost, id)
		}
		if scanErr != nil {
			return scanErr
		}

		_, timestamp := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, result = ?, completed_at = ?, next_eligible_at = NULL,
                 last_error = NULL, updated_at = ?
             WHERE id = ? AND owner = ?`,
			StatusCompleted, encoded, timestamp, timestamp, id, owner,
		); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}

		for _, follow := range followUps {
			if follow.ParentID <= 0 {
				follow.ParentID = id
			}
			if strings.TrimSpace(follow.GroupKey) == "" {
				follow.GroupKey = groupKey.String
			}
			childID, err := s.EnqueueTx(ctx, tx, follow)
			if errors.Is(err, ErrDuplicateJob) {
				continue
			}
			if err != nil {
				return fmt.Errorf("enqueue follow-up %s: %w", follow.Kind, err)
			}
			created = append(created, childID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Fail applies the retry policy's transition to an owned job: back to pending
// with backoff, or quarantined.
func (s *Store) Fail(ctx context.Context, id int64, owner string, transition Transition) error {
	if transition.Status != StatusPending && transition.Status != StatusQuarantined {
		return fmt.Errorf("%w: failure cannot move a job to %s", ErrInvalidTransition, transition.Status)
	}
	_, timestamp := s.timestamp()
	var quarantinedAt any
	if transition.Status == StatusQuarantined {
		quarantinedAt = timestamp
	}
	res, err := s.db.Exec(ctx,
		`UPDATE jobs
         SET status = ?, attempt_count = ?, next_eligible_at = ?, last_error = ?, quarantined_at = ?,
             owner = NULL, claimed_at = NULL, started_at = NULL, updated_at = ?
         WHERE id = ? AND owner = ? AND status IN (?, ?)`,
		transition.Status,
		transition.AttemptCount,
		nullableTime(transition.NextEligibleAt),
		nullableString(transition.Error),
		quarantinedAt,
		timestamp,
		id, owner, StatusClaimed, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %d", ErrClaimLost, id)
	}
	return nil
}
