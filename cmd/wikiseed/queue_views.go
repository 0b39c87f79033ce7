package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"wikiseed/internal/queue"
)

var jobColumns = []column{numCol("ID"), col("Kind"), col("Status"), col("Target"), col("Group"), numCol("Attempts"), col("Next"), col("Owner")}

func jobRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		group := orDash(job.GroupKey)
		if job.Barrier {
			group += " (barrier)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			displayLabel(string(job.Kind)),
			displayLabel(string(job.Status)),
			truncate(orDash(job.Target), 48),
			group,
			fmt.Sprintf("%d/%d", job.AttemptCount, job.MaxRetries),
			formatRelative(job.NextEligibleAt),
			orDash(job.Owner),
		})
	}
	return rows
}

func statusRows(stats map[queue.Kind]map[queue.Status]int) ([]column, [][]string) {
	statuses := queue.AllStatuses()
	columns := []column{col("Kind")}
	for _, status := range statuses {
		columns = append(columns, numCol(displayLabel(string(status))))
	}
	var rows [][]string
	for _, kind := range queue.AllKinds() {
		byStatus, ok := stats[kind]
		if !ok {
			continue
		}
		row := []string{displayLabel(string(kind))}
		for _, status := range statuses {
			row = append(row, strconv.Itoa(byStatus[status]))
		}
		rows = append(rows, row)
	}
	return columns, rows
}

func printJobDetail(out io.Writer, job *queue.Job, blockers []*queue.Job) {
	line := func(label, value string) {
		fmt.Fprintf(out, "%-16s %s\n", label+":", value)
	}
	line("Job", "#"+strconv.FormatInt(job.ID, 10))
	line("Kind", displayLabel(string(job.Kind)))
	line("Status", displayLabel(string(job.Status)))
	line("Target", orDash(job.Target))
	line("Group", orDash(job.GroupKey))
	line("Barrier", yesNo(job.Barrier))
	if job.ParentID > 0 {
		line("Parent", "#"+strconv.FormatInt(job.ParentID, 10))
	}
	line("Attempts", fmt.Sprintf("%d of %d", job.AttemptCount, job.MaxRetries))
	line("Next eligible", formatRelative(job.NextEligibleAt))
	line("Owner", orDash(job.Owner))
	line("Created", formatTimestamp(&job.CreatedAt))
	line("Claimed", formatTimestamp(job.ClaimedAt))
	line("Completed", formatTimestamp(job.CompletedAt))
	line("Quarantined", formatTimestamp(job.QuarantinedAt))
	if job.LastError != "" {
		line("Last error", job.LastError)
	}
	if len(job.Params) > 0 {
		line("Params", formatMap(job.Params))
	}
	if len(job.Result) > 0 {
		line("Result", formatMap(job.Result))
	}
	if len(blockers) > 0 {
		ids := make([]string, 0, len(blockers))
		for _, b := range blockers {
			ids = append(ids, fmt.Sprintf("#%d %s (%s)", b.ID, b.Kind, b.Status))
		}
		line("Waiting on", strings.Join(ids, ", "))
	}
}

func formatMap(values map[string]any) string {
	parts := make([]string, 0, len(values))
	for key, value := range values {
		parts = append(parts, fmt.Sprintf("%s=%v", key, value))
	}
	sortStrings(parts)
	return truncate(strings.Join(parts, " "), 200)
}
