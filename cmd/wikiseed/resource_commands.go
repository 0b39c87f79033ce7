package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wikiseed/internal/grouping"
)

var resourceColumns = []column{numCol("ID"), col("Grouping Key"), col("Path"), numCol("Size"), numCol("Refs"), col("Verified"), col("Created")}

func resourceRows(resources []*grouping.Resource) [][]string {
	rows := make([][]string, 0, len(resources))
	for _, res := range resources {
		rows = append(rows, []string{
			strconv.FormatInt(res.ID, 10),
			res.GroupingKey,
			shortenPath(res.Path, 60),
			formatBytes(res.SizeBytes),
			strconv.Itoa(res.RefCount),
			displayLabel(string(res.VerificationStatus)),
			formatTimestamp(&res.CreatedAt),
		})
	}
	return rows
}

func newResourcesCommand(ctx *commandContext) *cobra.Command {
	resCmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"resource"},
		Short:   "Inspect and manage stored resources",
	}
	resCmd.AddCommand(newResourcesListCommand(ctx))
	resCmd.AddCommand(newResourcesRegisterCommand(ctx))
	resCmd.AddCommand(newResourcesCandidatesCommand(ctx))
	resCmd.AddCommand(newResourcesCanDeleteCommand(ctx))
	resCmd.AddCommand(newResourcesDeleteCommand(ctx))
	return resCmd
}

func newResourcesListCommand(ctx *commandContext) *cobra.Command {
	var filter grouping.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				resources, err := s.grouping.Resources(commandCtx(cmd), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resources)
				}
				printTable(cmd.OutOrStdout(), resourceColumns, resourceRows(resources), "No resources")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.GroupingKey, "group", "", "Filter by grouping key")
	cmd.Flags().BoolVar(&filter.Unreferenced, "unreferenced", false, "Only resources outside every bundle")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of resources")
	return cmd
}

func newResourcesRegisterCommand(ctx *commandContext) *cobra.Command {
	var res grouping.NewResource
	var verification string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Record a stored file",
		RunE: func(cmd *cobra.Command, args []string) error {
			res.VerificationStatus = grouping.Verification(verification)
			return ctx.withStores(func(s *stores) error {
				registered, err := s.grouping.RegisterResource(commandCtx(cmd), res)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, registered)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered resource #%d (%s, %s)\n",
					registered.ID, registered.GroupingKey, formatBytes(registered.SizeBytes))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&res.Path, "path", "", "File path")
	cmd.Flags().StringVar(&res.GroupingKey, "group", "", "Grouping key shared by copies of the same content")
	cmd.Flags().Int64Var(&res.SizeBytes, "size", 0, "Size in bytes")
	cmd.Flags().StringVar(&res.MD5, "md5", "", "MD5 digest")
	cmd.Flags().StringVar(&res.SHA1, "sha1", "", "SHA-1 digest")
	cmd.Flags().StringVar(&verification, "verification", "", "unverified, verified, or mismatch")
	cmd.Flags().IntVar(&res.AccessPriority, "priority", 0, "Access priority; lower is cleaned up first")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func newResourcesCandidatesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List resources in the order cleanup would remove them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				resources, err := s.grouping.CleanupCandidates(commandCtx(cmd), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resources)
				}
				printTable(cmd.OutOrStdout(), resourceColumns, resourceRows(resources), "No cleanup candidates")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of candidates")
	return cmd
}

func newResourcesCanDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "can-delete <id>",
		Short: "Report whether a resource may be deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				ok, err := s.grouping.CanDelete(commandCtx(cmd), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"id": id, "can_delete": ok})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resource #%d deletable: %s\n", id, yesNo(ok))
				return nil
			})
		},
	}
}

func newResourcesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a resource file and its row when the golden-copy rule allows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				removed, err := s.grouping.Delete(commandCtx(cmd), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted resource #%d (%s, freed %s)\n",
					removed.ID, removed.Path, formatBytes(removed.SizeBytes))
				return nil
			})
		},
	}
}
