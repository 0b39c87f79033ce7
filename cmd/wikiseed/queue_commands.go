package main

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wikiseed/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueuePendingCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))
	queueCmd.AddCommand(newQueueFailCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))
	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per kind and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				stats, err := s.queue.Stats(commandCtx(cmd))
				if err != nil {
					return err
				}
				health, err := s.queue.Health(commandCtx(cmd))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"stats": stats, "health": health})
				}
				out := cmd.OutOrStdout()
				columns, rows := statusRows(stats)
				printTable(out, columns, rows, "Queue is empty")
				if health.Total > 0 {
					fmt.Fprintf(out, "%d total, %d deferred by backoff, %d in flight\n",
						health.Total, health.Deferred, health.InFlight)
				}
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		kinds    []string
		statuses []string
		group    string
		parent   int64
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.Filter{GroupKey: group, ParentID: parent, Limit: limit}
			for _, value := range kinds {
				kind, err := queue.ParseKind(value)
				if err != nil {
					return err
				}
				filter.Kinds = append(filter.Kinds, kind)
			}
			for _, value := range statuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withStores(func(s *stores) error {
				jobs, err := s.queue.List(commandCtx(cmd), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				printTable(cmd.OutOrStdout(), jobColumns, jobRows(jobs), "No jobs match")
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Filter by kind (repeatable)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&group, "group", "", "Filter by group key")
	cmd.Flags().Int64Var(&parent, "parent", 0, "Filter by parent job id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job and what it is waiting on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				job, err := s.queue.Get(commandCtx(cmd), id)
				if err != nil {
					return err
				}
				var blockers []*queue.Job
				if job.Status == queue.StatusPending {
					if blockers, err = s.queue.BlockingJobs(commandCtx(cmd), id); err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"job": job, "blocked_by": blockers})
				}
				printJobDetail(cmd.OutOrStdout(), job, blockers)
				return nil
			})
		},
	}
}

func newQueuePendingCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending jobs of one kind in claim order",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := queue.ParseKind(kind)
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				jobs, err := s.queue.ListPending(commandCtx(cmd), parsed, limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				printTable(cmd.OutOrStdout(), jobColumns, jobRows(jobs), "No pending "+string(parsed)+" jobs")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Job kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>...",
		Short: "Return quarantined or parked jobs to pending with a fresh attempt budget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				updated, err := s.queue.Requeue(commandCtx(cmd), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d of %d job(s)\n", updated, len(ids))
				return nil
			})
		},
	}
}

func newQueueFailCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Park a pending job so workers skip it until requeued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				if err := s.queue.Park(commandCtx(cmd), id, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Parked job #%d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded as the job's last error")
	return cmd
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	var kinds []string
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Return expired claims to the queue, counting the attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := queue.AllKinds()
			if len(kinds) > 0 {
				selected = selected[:0]
				for _, value := range kinds {
					kind, err := queue.ParseKind(value)
					if err != nil {
						return err
					}
					selected = append(selected, kind)
				}
			}
			return ctx.withStores(func(s *stores) error {
				var reclaimed []*queue.Job
				for _, kind := range selected {
					threshold := olderThan
					if threshold <= 0 {
						threshold = s.cfg.StaleClaimThreshold(string(kind))
					}
					jobs, err := s.queue.ReclaimStale(commandCtx(cmd), kind, time.Now().Add(-threshold))
					if err != nil {
						return err
					}
					reclaimed = append(reclaimed, jobs...)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, reclaimed)
				}
				printTable(cmd.OutOrStdout(), jobColumns, jobRows(reclaimed), "No stale claims")
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Kinds to reclaim (default all)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Claim age cutoff (default per-kind stale threshold)")
	return cmd
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

func parseIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func sortStrings(values []string) {
	slices.Sort(values)
}
