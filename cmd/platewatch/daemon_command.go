package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"platewatch/internal/daemon"
	"platewatch/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon [video]...",
		Short: "Run the processing daemon in the foreground",
		Long: "Runs the background worker until interrupted. Video arguments " +
			"are queued before the worker starts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			manager, store, err := ctx.buildManager(logger)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, store, logger, manager)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(cmd.Context()); err != nil {
				return err
			}
			for _, arg := range args {
				job, err := d.AddFile(cmd.Context(), arg)
				if err != nil {
					d.Stop()
					return fmt.Errorf("queue %s: %w", arg, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d: %s\n", job.ID, job.Title)
			}

			status, err := d.Status(cmd.Context())
			if err != nil {
				d.Stop()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon running, %d jobs queued, logging to %s\n",
				status.Queue.Pending+status.Queue.Processing, d.LogPath())

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(signals)

			select {
			case <-cmd.Context().Done():
			case sig := <-signals:
				logger.Info("shutdown signal received", logging.String("signal", sig.String()))
			}
			d.Stop()
			return nil
		},
	}
}
