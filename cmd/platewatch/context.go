package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"platewatch/internal/config"
	"platewatch/internal/logging"
	"platewatch/internal/notifications"
	"platewatch/internal/queue"
	"platewatch/internal/services/alpr"
	"platewatch/internal/services/detector"
	"platewatch/internal/services/ffmpeg"
	"platewatch/internal/services/smb"
	"platewatch/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the queue database for commands that only touch the queue.
func (c *commandContext) withStore(fn func(cfg *config.Config, store *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// buildManager assembles the full processing stack for commands that run jobs.
func (c *commandContext) buildManager(logger *slog.Logger) (*workflow.Manager, *queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, err
	}

	plateClient, err := alpr.New(cfg.Plates.Binary, cfg.Plates.DetectorModel, cfg.Plates.OCRModel)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("configure plate recognizer: %w", err)
	}
	scaler, err := ffmpeg.New(cfg.FFmpegBinary(), cfg.FFprobeBinary())
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("configure scaler: %w", err)
	}

	var mover smb.Mover
	if cfg.Transfer.Enabled {
		client, err := smb.New(smb.Config{
			Binary:   cfg.SmbclientBinary(),
			Server:   cfg.Transfer.Server,
			Share:    cfg.Transfer.Share,
			Path:     cfg.Transfer.Path,
			Username: cfg.Transfer.Username,
			Password: cfg.Transfer.Password,
			Domain:   cfg.Transfer.Domain,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("configure transfer: %w", err)
		}
		mover = client
	}

	notifier := notifications.NewService(cfg)
	processor := workflow.NewProcessor(
		cfg,
		store,
		detector.NewDNN(cfg.Detector.ModelPath),
		plateClient,
		scaler,
		mover,
		notifier,
		logging.NewComponentLogger(logger, "processor"),
	)
	manager := workflow.NewManager(cfg, store, processor, notifier, logger)
	return manager, store, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
