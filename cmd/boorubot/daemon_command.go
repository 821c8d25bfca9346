package main

import (
	"github.com/spf13/cobra"

	"boorubot/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the bot in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var level string
			if ctx.logLevelFlag != nil {
				level = *ctx.logLevelFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: level})
		},
	}
}
