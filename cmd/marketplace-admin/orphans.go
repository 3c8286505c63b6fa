package main

import (
	"github.com/spf13/cobra"

	"github.com/asktourist/marketplace/internal/service"
)

func newOrphansCmd(env *adminEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Inspect and drain the queue of identities left without a profile",
	}

	length := &cobra.Command{
		Use:   "len",
		Short: "Print the number of queued orphaned identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			return env.withDeps(ctx, func(deps *adminDeps) error {
				n, err := deps.Orphans.Len(ctx)
				if err != nil {
					return err
				}
				return writef(env.Out, "%d\n", n)
			})
		},
	}

	reap := &cobra.Command{
		Use:   "reap",
		Short: "Run one reaper pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			cfg := env.Config.OrphanReaper
			if batch, _ := cmd.Flags().GetInt("batch"); batch > 0 {
				cfg.BatchSize = batch
			}
			return env.withDeps(ctx, func(deps *adminDeps) error {
				reaper, err := service.NewOrphanReaperService(service.OrphanReaperServiceOptions{
					Queue:    deps.Orphans,
					Identity: deps.Identity,
					Config:   cfg,
					Logger:   env.Logger,
				})
				if err != nil {
					return err
				}
				res, err := reaper.RunOnce(ctx)
				if werr := writef(env.Out, "deleted=%d requeued=%d dropped=%d\n", res.Deleted, res.Requeued, res.Dropped); werr != nil {
					return werr
				}
				return err
			})
		},
	}
	reap.Flags().Int("batch", 0, "Override the configured batch size")

	cmd.AddCommand(length, reap)
	return cmd
}
