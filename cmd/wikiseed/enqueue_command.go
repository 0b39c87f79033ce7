package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"wikiseed/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		kind       string
		target     string
		parent     int64
		group      string
		barrier    bool
		params     string
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Insert a job into the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedKind, err := queue.ParseKind(kind)
			if err != nil {
				return err
			}
			var decoded map[string]any
			if strings.TrimSpace(params) != "" {
				if err := json.Unmarshal([]byte(params), &decoded); err != nil {
					return fmt.Errorf("--params must be a JSON object: %w", err)
				}
			}
			return ctx.withStores(func(s *stores) error {
				id, err := s.queue.Enqueue(commandCtx(cmd), queue.NewJob{
					Kind:       parsedKind,
					ParentID:   parent,
					Target:     target,
					GroupKey:   group,
					Barrier:    barrier,
					Params:     decoded,
					MaxRetries: maxRetries,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int64{"id": id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s job #%d\n", parsedKind, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Job kind")
	cmd.Flags().StringVar(&target, "target", "", "Target the job operates on")
	cmd.Flags().Int64Var(&parent, "parent", 0, "Parent job id the job waits for")
	cmd.Flags().StringVar(&group, "group", "", "Group key")
	cmd.Flags().BoolVar(&barrier, "barrier", false, "Wait for every other job in the group")
	cmd.Flags().StringVar(&params, "params", "", "Job parameters as a JSON object")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Override the kind's retry ceiling")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
