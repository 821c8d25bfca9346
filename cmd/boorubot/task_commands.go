package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"boorubot/internal/booru"
	"boorubot/internal/config"
	"boorubot/internal/enrich"
	"boorubot/internal/hub"
	"boorubot/internal/media"
	"boorubot/internal/sources"
	"boorubot/internal/workflow"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [post-id...]",
		Short: "Mirror posts from the booru",
		Long: "Without arguments, pulls every post newer than the most recent " +
			"mirrored one. With post ids, fetches exactly those posts. Tags " +
			"created by the sync are enriched afterwards.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid post id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error {
				svc := booru.NewService(cfg, store, logger)
				if len(ids) > 0 {
					if err := svc.UpdatePosts(cmd.Context(), ids...); err != nil {
						return err
					}
				} else if err := svc.AutoUpdate(cmd.Context()); err != nil {
					return err
				}
				tasks := syncTasks(cfg, store, svc, logger)
				if err := tasks.EnrichTags(cmd.Context(), svc.TakeCreatedTags()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sync complete")
				return nil
			})
		},
	}
}

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var updateType bool
	cmd := &cobra.Command{
		Use:   "enrich <tag>...",
		Short: "Refresh tag details from the information sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error {
				svc := booru.NewService(cfg, store, logger)
				if updateType {
					if err := svc.RefreshTags(cmd.Context(), args, true); err != nil {
						return err
					}
				}
				tasks := syncTasks(cfg, store, svc, logger)
				if err := tasks.EnrichTags(cmd.Context(), args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enriched %d tag(s)\n", len(args))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&updateType, "update-type", false,
		"re-fetch each tag's category from the booru before enriching")
	return cmd
}

func newPostCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "post",
		Short: "Publish unposted media",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *hub.Store, logger *slog.Logger) error {
				if !cfg.Weibo.Enabled {
					return fmt.Errorf("posting is disabled in configuration (set weibo.enabled = true)")
				}
				tasks, err := workflow.NewTasks(cfg, store, logger)
				if err != nil {
					return err
				}
				if err := tasks.Post(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Posting run complete")
				return nil
			})
		},
	}
}

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Trim the media cache to its configured budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			if err := media.CleanCache(cfg, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Media cache cleaned")
			return nil
		},
	}
}

// syncTasks assembles the task set used by sync and enrich runs, which
// never need the posting side.
func syncTasks(cfg *config.Config, store *hub.Store, svc *booru.Service, logger *slog.Logger) *workflow.Tasks {
	client := sources.NewClient(cfg, logger)
	enricher := enrich.New(store, enrich.DefaultAdapters(client, cfg), logger)
	return workflow.NewTasksWith(cfg, store, svc, enricher,
		media.NewDownloader(cfg, logger), media.NewTranscoder(cfg, logger), nil, logger)
}
