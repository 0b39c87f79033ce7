package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wikiseed/internal/preflight"
)

type doctorCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"`
	Detail   string `json:"detail"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, stage binaries and notification endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(commandCtx(cmd), cfg, kinds)
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				checks := make([]doctorCheck, 0, len(results))
				for _, r := range results {
					checks = append(checks, doctorCheck{Name: r.Name, Passed: r.Passed, Required: r.Required, Detail: r.Detail})
				}
				if err := writeJSON(cmd, checks); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, r := range results {
					kind := statusOK
					switch {
					case r.Passed:
					case r.Required:
						kind = statusError
					default:
						kind = statusWarn
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only require binaries for these kinds")
	return cmd
}
