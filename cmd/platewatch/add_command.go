package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"platewatch/internal/config"
	"platewatch/internal/notifications"
	"platewatch/internal/queue"
	"platewatch/internal/titles"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <video>...",
		Short: "Queue video files for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				notifier := notifications.NewService(cfg)
				for _, arg := range args {
					source, err := resolveVideoPath(arg)
					if err != nil {
						return err
					}
					job, err := store.NewJob(cmd.Context(), source, titles.Derive(source), cfg.Paths.DownloadDir)
					if err != nil {
						return fmt.Errorf("queue %s: %w", arg, err)
					}
					if err := notifier.NotifyJobAdded(cmd.Context(), job.Title); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: notification failed: %v\n", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d: %s\n", job.ID, job.Title)
				}
				return nil
			})
		},
	}
}

func resolveVideoPath(arg string) (string, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return "", errors.New("video path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", arg, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}
	if !titles.IsVideoFile(info.Name()) {
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(info.Name()))
	}
	return absPath, nil
}

// expandVideoSources resolves an argument to one or more video paths.
// A directory argument expands to the video files directly inside it.
func expandVideoSources(arg string) ([]string, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return nil, errors.New("video path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", arg, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", arg, err)
	}
	if !info.IsDir() {
		if !titles.IsVideoFile(info.Name()) {
			return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(info.Name()))
		}
		return []string{absPath}, nil
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", absPath, err)
	}
	var sources []string
	for _, entry := range entries {
		if entry.IsDir() || !titles.IsVideoFile(entry.Name()) {
			continue
		}
		sources = append(sources, filepath.Join(absPath, entry.Name()))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no video files found in %s", absPath)
	}
	return sources, nil
}
