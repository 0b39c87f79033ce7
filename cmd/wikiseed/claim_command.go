package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wikiseed/internal/admission"
	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
	"wikiseed/internal/queue"
)

func newClaimCommand(ctx *commandContext) *cobra.Command {
	var kind, owner string
	var batch int
	var force bool
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim eligible jobs by hand (diagnostics; claims expire via stale reclaim)",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := queue.ParseKind(kind)
			if err != nil {
				return err
			}
			if owner == "" {
				host, _ := os.Hostname()
				owner = "manual@" + orDash(host)
			}
			return ctx.withStores(func(s *stores) error {
				if s.cfg.IsGatedKind(string(parsed)) && !force {
					gate := admission.New(s.cfg, s.db, s.queue, notifications.NewService(s.cfg), logging.NewNop())
					allowed, band, err := gate.Evaluate(commandCtx(cmd))
					if err != nil {
						return fmt.Errorf("admission check: %w", err)
					}
					if !allowed {
						return fmt.Errorf("storage admission is %s; %s claims are refused (use --force to override)", band, parsed)
					}
				}
				jobs, err := s.queue.ClaimNext(commandCtx(cmd), parsed, owner, batch)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				printTable(out, jobColumns, jobRows(jobs), "No eligible "+string(parsed)+" jobs")
				if len(jobs) > 0 {
					fmt.Fprintf(out, "Claimed as %s\n", owner)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Job kind")
	cmd.Flags().IntVar(&batch, "batch", 1, "Maximum jobs to claim")
	cmd.Flags().BoolVar(&force, "force", false, "Claim gated kinds even while storage admission is paused")
	cmd.Flags().StringVar(&owner, "owner", "", "Claim owner (default manual@<hostname>)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
