package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"boorubot/internal/config"
	"boorubot/internal/hub"
)

func newTagCommand(ctx *commandContext) *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Inspect and manage tag details",
	}
	tagCmd.AddCommand(newTagShowCommand(ctx))
	tagCmd.AddCommand(newTagHistoryCommand(ctx))
	tagCmd.AddCommand(newTagRevertCommand(ctx))
	return tagCmd
}

func newTagShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a tag's recorded details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error {
				tag, err := store.GetTag(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Tag: %s (%s)\n", tag.Name, tag.Type)
				fmt.Fprintf(out, "Display name: %s\n", tag.MainName())
				if len(tag.Detail) == 0 {
					fmt.Fprintln(out, "No details recorded")
					return nil
				}

				reg := store.Registry()
				rows := make([][]string, 0, len(tag.OrderedKeys()))
				for _, code := range tag.OrderedKeys() {
					raw := tag.Detail[code]
					label := code
					link := ""
					if attr, ok := reg.Get(code); ok {
						label = attr.Name
						link = attr.Link(raw)
					}
					rows = append(rows, []string{label, raw, link})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Attribute", "Value", "Link"}, rows, nil))
				return nil
			})
		},
	}
}

func newTagHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <name>",
		Short: "List a tag's detail revisions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error {
				snapshots, err := store.ListSnapshots(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(snapshots) == 0 {
					fmt.Fprintln(out, "No revisions recorded")
					return nil
				}
				rows := make([][]string, 0, len(snapshots))
				for _, snap := range snapshots {
					rows = append(rows, []string{
						strconv.FormatInt(snap.ID, 10),
						snap.Note,
						snap.EditorName(),
						snap.UpdateTime.Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Note", "Editor", "Updated"}, rows,
					[]columnAlignment{alignRight}))
				return nil
			})
		},
	}
}

func newTagRevertCommand(ctx *commandContext) *cobra.Command {
	var editor string

	cmd := &cobra.Command{
		Use:   "revert <name> <snapshot-id>",
		Short: "Restore a tag's details from an earlier revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshotID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q", args[1])
			}
			return ctx.withStore(func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error {
				if err := store.RevertToSnapshot(cmd.Context(), args[0], snapshotID, editor); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s to snapshot %d\n", args[0], snapshotID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&editor, "editor", "", "Editor name recorded on the new revision")
	return cmd
}
