package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wikiseed/internal/admission"
	"wikiseed/internal/logging"
	"wikiseed/internal/notifications"
)

func newAdmissionCommand(ctx *commandContext) *cobra.Command {
	admissionCmd := &cobra.Command{
		Use:   "admission",
		Short: "Storage admission control",
	}
	admissionCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Probe storage and report the admission band",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				ctrl := admission.New(s.cfg, s.db, s.queue, notifications.NewService(nil), logging.NewNop())
				band, usage, err := ctrl.State(commandCtx(cmd))
				if err != nil {
					return err
				}
				last, recorded, err := ctrl.LastBand(commandCtx(cmd))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"enabled":      s.cfg.Admission.Enabled,
						"band":         band,
						"recorded":     last,
						"usage":        usage,
						"gated_kinds":  s.cfg.Admission.GatedKinds,
						"margin_bytes": s.cfg.SafetyMarginBytes(),
					})
				}
				return printAdmission(cmd, s.cfg.Admission.Enabled, band, last, recorded, usage, s.cfg.SafetyMarginBytes())
			})
		},
	})
	return admissionCmd
}

func printAdmission(cmd *cobra.Command, enabled bool, band, last admission.Band, recorded bool, usage admission.Usage, margin uint64) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	kind := statusOK
	switch band {
	case admission.BandCleanupActive:
		kind = statusWarn
	case admission.BandPaused:
		kind = statusError
	}
	if !enabled {
		kind = statusInfo
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Fprintln(out, renderStatusLine("Admission", statusInfo, state, colorize))
	fmt.Fprintln(out, renderStatusLine("Band", kind, displayLabel(string(band)), colorize))
	lastLabel := "never evaluated by a worker"
	if recorded {
		lastLabel = displayLabel(string(last))
	}
	fmt.Fprintln(out, renderStatusLine("Last recorded", statusInfo, lastLabel, colorize))
	fmt.Fprintln(out, renderStatusLine("Storage", statusInfo, usage.Describe(), colorize))
	fmt.Fprintln(out, renderStatusLine("Safety margin", statusInfo, humanize.IBytes(margin), colorize))
	return nil
}
