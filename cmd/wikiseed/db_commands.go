package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database diagnostics",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check schema and integrity of the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				health, err := s.db.CheckHealth(commandCtx(cmd))
				if ctx.jsonOutput() {
					if jsonErr := writeJSON(cmd, health); jsonErr != nil {
						return jsonErr
					}
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, health.Path, colorize))
				fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, strconv.Itoa(health.SchemaVersion), colorize))
				if len(health.MissingTables) > 0 {
					fmt.Fprintln(out, renderStatusLine("Tables", statusError, "missing "+strings.Join(health.MissingTables, ", "), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Tables", statusOK, strconv.Itoa(len(health.TablesPresent))+" present", colorize))
				}
				integrity := statusOK
				if !health.IntegrityCheck {
					integrity = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Integrity", integrity, yesNo(health.IntegrityCheck), colorize))
				if err != nil {
					return err
				}
				if !health.Healthy() {
					return fmt.Errorf("database unhealthy: %s", orDash(health.Error))
				}
				return nil
			})
		},
	})
	return dbCmd
}
