package main

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"platewatch/internal/daemon"
	"platewatch/internal/logging"
	"platewatch/internal/queue"
	"platewatch/internal/titles"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process [video|directory]...",
		Short: "Process queued videos and exit when the queue drains",
		Long: "Runs the pipeline in the foreground until no pending jobs remain. " +
			"File and directory arguments are queued before processing starts; " +
			"directories expand to the video files they contain.",
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
			defer store.Close()

			// Hold the daemon lock for the whole run so a daemon sharing the
			// queue database cannot execute the same rows concurrently.
			lock := flock.New(daemon.LockPath(cfg))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire processing lock: %w", err)
			}
			if !locked {
				return errors.New("a platewatch daemon is running; use 'platewatch add' to queue work instead")
			}
			defer func() { _ = lock.Unlock() }()

			for _, arg := range args {
				sources, err := expandVideoSources(arg)
				if err != nil {
					return err
				}
				for _, source := range sources {
					job, err := store.NewJob(cmd.Context(), source, titles.Derive(source), cfg.Paths.DownloadDir)
					if err != nil {
						return fmt.Errorf("queue %s: %w", source, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d: %s\n", job.ID, job.Title)
				}
			}

			if _, err := store.ResetStuckProcessing(cmd.Context()); err != nil {
				return err
			}

			processed, failed, err := manager.RunUntilIdle(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d jobs, %d failed\n", processed, failed)
			if failed > 0 {
				jobs, listErr := store.List(cmd.Context(), queue.StatusError)
				if listErr == nil {
					for _, job := range jobs {
						fmt.Fprintf(cmd.ErrOrStderr(), "  job %d (%s): %s\n", job.ID, job.Title, job.ErrorMessage)
					}
				}
			}
			return nil
		},
	}
}
