package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newBundlesCommand(ctx *commandContext) *cobra.Command {
	bundleCmd := &cobra.Command{
		Use:     "bundles",
		Aliases: []string{"bundle"},
		Short:   "Inspect and manage bundles of hard-linked resources",
	}
	bundleCmd.AddCommand(newBundlesListCommand(ctx))
	bundleCmd.AddCommand(newBundlesCreateCommand(ctx))
	bundleCmd.AddCommand(newBundlesMembershipCommand(ctx, "link", "Add a resource to an open bundle"))
	bundleCmd.AddCommand(newBundlesMembershipCommand(ctx, "unlink", "Remove a resource from an open bundle"))
	bundleCmd.AddCommand(newBundlesSealCommand(ctx))
	bundleCmd.AddCommand(newBundlesMembersCommand(ctx))
	return bundleCmd
}

func newBundlesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				bundles, err := s.grouping.Bundles(commandCtx(cmd))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, bundles)
				}
				rows := make([][]string, 0, len(bundles))
				for _, b := range bundles {
					rows = append(rows, []string{
						strconv.FormatInt(b.ID, 10),
						b.Name,
						orDash(b.Classification),
						displayLabel(string(b.BuildStatus)),
						strconv.Itoa(b.MemberCount),
						shortenPath(orDash(b.ArtifactPath), 48),
						formatTimestamp(b.BuiltAt),
					})
				}
				columns := []column{numCol("ID"), col("Name"), col("Class"), col("Status"), numCol("Members"), col("Artifact"), col("Built")}
				printTable(cmd.OutOrStdout(), columns, rows, "No bundles")
				return nil
			})
		},
	}
}

func newBundlesCreateCommand(ctx *commandContext) *cobra.Command {
	var classification string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an open bundle (existing names are returned unchanged)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				bundle, err := s.grouping.CreateBundle(commandCtx(cmd), args[0], classification)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, bundle)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Bundle #%d %s (%s)\n", bundle.ID, bundle.Name, bundle.BuildStatus)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&classification, "class", "", "Bundle classification")
	return cmd
}

func newBundlesMembershipCommand(ctx *commandContext, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <resource-id> <bundle-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				apply := s.grouping.Link
				if verb == "unlink" {
					apply = s.grouping.Unlink
				}
				changed, err := apply(commandCtx(cmd), ids[0], ids[1])
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(cmd.OutOrStdout(), "No change for resource #%d in bundle #%d\n", ids[0], ids[1])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resource #%d %sed with bundle #%d\n", ids[0], verb, ids[1])
				return nil
			})
		},
	}
}

func newBundlesSealCommand(ctx *commandContext) *cobra.Command {
	var artifact string
	cmd := &cobra.Command{
		Use:   "seal <bundle-id>",
		Short: "Mark a bundle built, freezing its membership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				if err := s.grouping.SealBundle(commandCtx(cmd), id, artifact); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sealed bundle #%d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&artifact, "artifact", "", "Path of the built artifact (torrent, archive)")
	return cmd
}

func newBundlesMembersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "members <bundle-id>",
		Short: "List the resources in a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				members, err := s.grouping.Members(commandCtx(cmd), id)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, members)
				}
				printTable(cmd.OutOrStdout(), resourceColumns, resourceRows(members), "Bundle has no members")
				return nil
			})
		},
	}
}
