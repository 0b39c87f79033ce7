package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wikiseed/internal/pipeline"
)

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var cycle string
	var wikis []string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Seed a dump cycle with a discover job and its barrier bundle job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				if strings.TrimSpace(cycle) == "" {
					cycle = pipeline.NextCycleDate(time.Now(), s.cfg.Discovery.CycleDays).Format(pipeline.CycleLayout)
				}
				if len(wikis) == 0 {
					wikis = s.cfg.Discovery.Wikis
				}
				triggered, err := pipeline.Trigger(commandCtx(cmd), s.queue, cycle, wikis)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, triggered)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Triggered cycle %s: discover job #%d, bundle job #%d (%d wikis)\n",
					triggered.Cycle, triggered.DiscoverID, triggered.BundleID, len(wikis))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cycle, "cycle", "", "Cycle date (YYYY-MM-DD); defaults to the next cycle day")
	cmd.Flags().StringSliceVar(&wikis, "wikis", nil, "Wikis to discover; defaults to discovery.wikis")
	return cmd
}
