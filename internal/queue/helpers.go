package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"wikiseed/internal/database"
)

const jobColumns = "id, kind, status, parent_id, target, group_key, barrier, exclusive, params, result, attempt_count, max_retries, next_eligible_at, last_error, owner, created_at, claimed_at, started_at, completed_at, quarantined_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             int64
		kind           string
		status         string
		parentID       sql.NullInt64
		target         sql.NullString
		groupKey       sql.NullString
		barrier        int
		exclusive      int
		params         sql.NullString
		result         sql.NullString
		attemptCount   int
		maxRetries     int
		nextEligible   sql.NullString
		lastError      sql.NullString
		owner          sql.NullString
		createdRaw     string
		claimedRaw     sql.NullString
		startedRaw     sql.NullString
		completedRaw   sql.NullString
		quarantinedRaw sql.NullString
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&status,
		&parentID,
		&target,
		&groupKey,
		&barrier,
		&exclusive,
		&params,
		&result,
		&attemptCount,
		&maxRetries,
		&nextEligible,
		&lastError,
		&owner,
		&createdRaw,
		&claimedRaw,
		&startedRaw,
		&completedRaw,
		&quarantinedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Kind:         Kind(kind),
		Status:       Status(status),
		ParentID:     parentID.Int64,
		Target:       target.String,
		GroupKey:     groupKey.String,
		Barrier:      barrier != 0,
		Exclusive:    exclusive != 0,
		AttemptCount: attemptCount,
		MaxRetries:   maxRetries,
		LastError:    lastError.String,
		Owner:        owner.String,
	}
	var err error
	if job.Params, err = decodeObject(params.String); err != nil {
		return nil, fmt.Errorf("decode params for job %d: %w", id, err)
	}
	if result.Valid {
		if job.Result, err = decodeObject(result.String); err != nil {
			return nil, fmt.Errorf("decode result for job %d: %w", id, err)
		}
	}
	if created, err := database.ParseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := database.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.NextEligibleAt = parseNullableTime(nextEligible)
	job.ClaimedAt = parseNullableTime(claimedRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.QuarantinedAt = parseNullableTime(quarantinedRaw)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// sortFIFO orders jobs by creation time then id; RETURNING gives no order.
func sortFIFO(jobs []*Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := database.ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func encodeObject(value map[string]any) (string, error) {
	if value == nil {
		return "{}", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeObject(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableID(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return database.FormatTime(value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
