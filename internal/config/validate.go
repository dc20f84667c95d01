package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateDedupe(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDetector() error {
	if strings.TrimSpace(c.Detector.ModelPath) == "" {
		return errors.New("detector.model_path must be set")
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		return errors.New("detector.min_confidence must be between 0 and 1")
	}
	if c.Detector.MinArea < 0 {
		return errors.New("detector.min_area must not be negative")
	}
	strategy := strings.ToLower(strings.TrimSpace(c.Detector.Strategy))
	for _, known := range Strategies {
		if strategy == known {
			return nil
		}
	}
	return fmt.Errorf("detector.strategy must be one of %s", strings.Join(Strategies, ", "))
}

func (c *Config) validateDedupe() error {
	if c.Dedupe.SimilarityThreshold < 0 || c.Dedupe.SimilarityThreshold > 1 {
		return errors.New("dedupe.similarity_threshold must be between 0 and 1")
	}
	if c.Dedupe.HistogramBins <= 0 {
		return errors.New("dedupe.histogram_bins must be positive")
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if !c.Transfer.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Transfer.Server) == "" {
		return errors.New("transfer.server must be set when transfer.enabled is true")
	}
	if strings.TrimSpace(c.Transfer.Share) == "" {
		return errors.New("transfer.share must be set when transfer.enabled is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.IdleTimeout <= 0 {
		return errors.New("workflow.idle_timeout must be positive")
	}
	return nil
}
