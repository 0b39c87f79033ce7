package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"wikiseed/internal/database"
	"wikiseed/internal/queue"
)

// CycleLayout is the date format used for cycle identifiers.
const CycleLayout = "2006-01-02"

// NextCycleDate returns the first cycle day strictly after now. Days beyond
// the end of a month clamp to its last day. With no days configured the
// first of next month is used.
func NextCycleDate(now time.Time, days []int) time.Time {
	valid := make([]int, 0, len(days))
	for _, d := range days {
		if d >= 1 && d <= 31 {
			valid = append(valid, d)
		}
	}
	if len(valid) == 0 {
		valid = []int{1}
	}
	slices.Sort(valid)

	year, month, today := now.Date()
	for _, d := range valid {
		day := min(d, daysIn(year, month, now.Location()))
		if day > today {
			return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
		}
	}
	next := time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())
	day := min(valid[0], daysIn(next.Year(), next.Month(), now.Location()))
	return time.Date(next.Year(), next.Month(), day, 0, 0, 0, 0, now.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ParseCycle validates a YYYY-MM-DD cycle identifier.
func ParseCycle(value string) (string, error) {
	value = strings.TrimSpace(value)
	parsed, err := time.Parse(CycleLayout, value)
	if err != nil {
		return "", fmt.Errorf("%w: cycle must be YYYY-MM-DD: %q", queue.ErrInvalidJob, value)
	}
	return parsed.Format(CycleLayout), nil
}

// Triggered reports the jobs seeded for a cycle.
type Triggered struct {
	Cycle      string `json:"cycle"`
	DiscoverID int64  `json:"discover_id"`
	BundleID   int64  `json:"bundle_id"`
}

// Trigger enqueues the discover job and its barrier bundle job for cycle in
// one transaction and records the cycle in system_state. Triggering the cycle
// that was last triggered returns queue.ErrDuplicateJob.
func Trigger(ctx context.Context, store *queue.Store, cycle string, wikis []string) (Triggered, error) {
	cycle, err := ParseCycle(cycle)
	if err != nil {
		return Triggered{}, err
	}
	out := Triggered{Cycle: cycle}
	err = store.DB().WithTx(ctx, func(tx *sql.Tx) error {
		last, ok, err := database.StateTx(ctx, tx, database.StateDiscoveryLastCycle)
		if err != nil {
			return err
		}
		if ok && last == cycle {
			return fmt.Errorf("%w: cycle %s already triggered", queue.ErrDuplicateJob, cycle)
		}

		params := map[string]any{"cycle": cycle}
		if len(wikis) > 0 {
			params["wikis"] = wikis
		}
		out.DiscoverID, err = store.EnqueueTx(ctx, tx, queue.NewJob{
			Kind:     queue.KindDiscover,
			Target:   cycle,
			GroupKey: cycle,
			Params:   params,
		})
		if err != nil {
			return err
		}
		out.BundleID, err = store.EnqueueTx(ctx, tx, queue.NewJob{
			Kind:     queue.KindBundle,
			ParentID: out.DiscoverID,
			Target:   cycle,
			GroupKey: cycle,
			Barrier:  true,
			Params:   map[string]any{"cycle": cycle},
		})
		if err != nil {
			return err
		}
		return database.SetStateTx(ctx, tx, database.StateDiscoveryLastCycle, cycle)
	})
	if err != nil {
		return Triggered{}, err
	}
	return out, nil
}
