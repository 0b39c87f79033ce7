package queue

import (
	"fmt"
	"strings"
	"time"

	"wikiseed/internal/config"
)

// Kind names the pipeline stage a job belongs to.
type Kind string

const (
	KindDiscover   Kind = config.KindDiscover
	KindFetch      Kind = config.KindFetch
	KindArchive    Kind = config.KindArchive
	KindBundle     Kind = config.KindBundle
	KindDistribute Kind = config.KindDistribute
	KindCleanup    Kind = config.KindCleanup
)

// ParseKind converts a string into a known job kind.
func ParseKind(value string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, known := range config.KnownKinds {
		if normalized == known {
			return Kind(known), nil
		}
	}
	return "", fmt.Errorf("%w: unknown job kind %q", ErrInvalidJob, value)
}

// AllKinds returns every job kind in pipeline order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(config.KnownKinds))
	for _, name := range config.KnownKinds {
		kinds = append(kinds, Kind(name))
	}
	return kinds
}

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusClaimed     Status = "claimed"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusQuarantined Status = "quarantined"
)

var allStatuses = []Status{
	StatusPending,
	StatusClaimed,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusQuarantined,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every lifecycle status.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status if known.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further automatic transition leaves status.
// Failed is operator-parked and deliberately not terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusQuarantined
}

// IsInFlight reports whether a worker currently owns the job.
func (s Status) IsInFlight() bool {
	return s == StatusClaimed || s == StatusRunning
}

// Job is a unit of pipeline work persisted in the jobs table.
type Job struct {
	ID             int64          `json:"id"`
	Kind           Kind           `json:"kind"`
	Status         Status         `json:"status"`
	ParentID       int64          `json:"parent_id,omitempty"`
	Target         string         `json:"target,omitempty"`
	GroupKey       string         `json:"group_key,omitempty"`
	Barrier        bool           `json:"barrier,omitempty"`
	Exclusive      bool           `json:"exclusive,omitempty"`
	Params         map[string]any `json:"params"`
	Result         map[string]any `json:"result,omitempty"`
	AttemptCount   int            `json:"attempt_count"`
	MaxRetries     int            `json:"max_retries"`
	NextEligibleAt *time.Time     `json:"next_eligible_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Owner          string         `json:"owner,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ClaimedAt      *time.Time     `json:"claimed_at,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	QuarantinedAt  *time.Time     `json:"quarantined_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StringParam returns a string parameter or "" when missing.
func (j *Job) StringParam(key string) string {
	if j == nil || j.Params == nil {
		return ""
	}
	if v, ok := j.Params[key].(string); ok {
		return v
	}
	return ""
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Kind     Kind           `json:"kind"`
	ParentID int64          `json:"parent_id,omitempty"`
	Target   string         `json:"target,omitempty"`
	GroupKey string         `json:"group_key,omitempty"`
	Barrier  bool           `json:"barrier,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	// MaxRetries overrides the per-kind ceiling when positive.
	MaxRetries int `json:"max_retries,omitempty"`
}

// Transition is the outcome the retry policy computes for a failed attempt.
type Transition struct {
	Status         Status
	AttemptCount   int
	NextEligibleAt time.Time
	Error          string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kinds    []Kind
	Statuses []Status
	GroupKey string
	ParentID int64
	Limit    int
}

// HealthSummary describes aggregated job counts per key lifecycle state.
type HealthSummary struct {
	Total       int
	Pending     int
	Deferred    int
	InFlight    int
	Completed   int
	Failed      int
	Quarantined int
}
