package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wikiseed/internal/database"
)

// Enqueue validates and inserts a pending job, returning its id.
func (s *Store) Enqueue(ctx context.Context, job NewJob) (int64, error) {
	var id int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.EnqueueTx(ctx, tx, job)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// EnqueueTx inserts a job inside an existing transaction so callers can
// enqueue related jobs atomically.
func (s *Store) EnqueueTx(ctx context.Context, tx *sql.Tx, job NewJob) (int64, error) {
	kind, err := ParseKind(string(job.Kind))
	if err != nil {
		return 0, err
	}
	job.Target = strings.TrimSpace(job.Target)
	job.GroupKey = strings.TrimSpace(job.GroupKey)
	if job.Barrier && job.GroupKey == "" {
		return 0, fmt.Errorf("%w: barrier job requires a group key", ErrInvalidJob)
	}
	if job.ParentID > 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE id = ?", job.ParentID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: parent job %d does not exist", ErrInvalidJob, job.ParentID)
		}
		if err != nil {
			return 0, fmt.Errorf("lookup parent: %w", err)
		}
	}

	policy := s.cfg.Kind(string(kind))
	maxRetries := policy.MaxRetries
	if job.MaxRetries > 0 {
		maxRetries = job.MaxRetries
	}
	exclusive := policy.ExclusiveTarget && job.Target != ""
	params, err := encodeObject(job.Params)
	if err != nil {
		return 0, fmt.Errorf("%w: encode params: %v", ErrInvalidJob, err)
	}

	_, timestamp := s.timestamp()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (
            kind, status, parent_id, target, group_key, barrier, exclusive, params,
            attempt_count, max_retries, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		kind,
		StatusPending,
		nullableID(job.ParentID),
		nullableString(job.Target),
		nullableString(job.GroupKey),
		boolToInt(job.Barrier),
		boolToInt(exclusive),
		params,
		maxRetries,
		timestamp,
		timestamp,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s %q", ErrDuplicateJob, kind, job.Target)
		}
		return 0, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Get retrieves a job by id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+makePlaceholders(len(filter.Kinds))+")")
		for _, kind := range filter.Kinds {
			args = append(args, kind)
		}
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.GroupKey != "" {
		clauses = append(clauses, "group_key = ?")
		args = append(args, filter.GroupKey)
	}
	if filter.ParentID > 0 {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, filter.ParentID)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// ListPending returns pending jobs of kind in FIFO order. Jobs still in
// backoff or blocked on dependencies are included.
func (s *Store) ListPending(ctx context.Context, kind Kind, limit int) ([]*Job, error) {
	return s.List(ctx, Filter{Kinds: []Kind{kind}, Statuses: []Status{StatusPending}, Limit: limit})
}

// Requeue moves quarantined or parked jobs back to pending with a fresh
// attempt budget.
func (s *Store) Requeue(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	_, timestamp := s.timestamp()
	args := []any{StatusPending, timestamp}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusQuarantined, StatusFailed)
	res, err := s.db.Exec(ctx,
		`UPDATE jobs
         SET status = ?, attempt_count = 0, next_eligible_at = NULL, last_error = NULL,
             owner = NULL, claimed_at = NULL, started_at = NULL, completed_at = NULL,
             quarantined_at = NULL, updated_at = ?
         WHERE id IN (`+makePlaceholders(len(ids))+`) AND status IN (?, ?)`,
		args...,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: another job already holds the target", ErrDuplicateJob)
		}
		return 0, fmt.Errorf("requeue jobs: %w", err)
	}
	return res.RowsAffected()
}

// Park moves a pending job to failed so workers skip it until requeued.
func (s *Store) Park(ctx context.Context, id int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "parked by operator"
	}
	_, timestamp := s.timestamp()
	res, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusFailed, reason, timestamp, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("park job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("park job: %w", err)
	}
	if affected == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %d is %s, only pending jobs can be parked", ErrInvalidTransition, id, job.Status)
	}
	return nil
}
