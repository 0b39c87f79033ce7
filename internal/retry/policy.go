package retry

import (
	"strings"
	"time"
	"unicode/utf8"

	"wikiseed/internal/config"
	"wikiseed/internal/queue"
	"wikiseed/internal/services"
)

const maxErrorLength = 2000

// Policy computes failure transitions from per-kind configuration.
type Policy struct {
	cfg *config.Config
}

// NewPolicy builds a policy backed by cfg.
func NewPolicy(cfg *config.Config) *Policy {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	return &Policy{cfg: cfg}
}

// Delay returns the wait before attempt n+1 of kind, where n is the number of
// attempts already made (1-based). Past the end of the schedule the last
// entry repeats.
func (p *Policy) Delay(kind queue.Kind, n int) time.Duration {
	schedule := p.cfg.BackoffSchedule(string(kind))
	if len(schedule) == 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	idx := n - 1
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

// OnFailure computes the transition for job after err. Fatal errors
// quarantine immediately; transient errors back off until the ceiling.
func (p *Policy) OnFailure(job *queue.Job, err error, now time.Time) queue.Transition {
	attempts := job.AttemptCount + 1
	transition := queue.Transition{
		AttemptCount: attempts,
		Error:        errorMessage(err),
	}
	if services.Classify(err) == services.ClassFatal || Exhausted(attempts, job.MaxRetries) {
		transition.Status = queue.StatusQuarantined
		return transition
	}
	transition.Status = queue.StatusPending
	transition.NextEligibleAt = now.Add(p.Delay(job.Kind, attempts))
	return transition
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	msg := strings.TrimSpace(err.Error())
	return truncateUTF8(msg, maxErrorLength)
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Exhausted reports whether attempts, counting the one that just failed,
// reach the ceiling. queue.Store.ReclaimStale applies the same rule in SQL.
func Exhausted(attempts, maxRetries int) bool {
	return attempts >= maxRetries
}
