package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDetector()
	c.normalizeDedupe()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetector() {
	c.Detector.Strategy = strings.ToLower(strings.TrimSpace(c.Detector.Strategy))
	if c.Detector.Strategy == "" {
		c.Detector.Strategy = defaultStrategy
	}
	c.Detector.Device = strings.ToLower(strings.TrimSpace(c.Detector.Device))
	if c.Detector.Device == "" {
		c.Detector.Device = defaultDevice
	}
	if c.Detector.MinConfidence == 0 {
		c.Detector.MinConfidence = defaultMinConfidence
	}
	if c.Detector.MinArea == 0 {
		c.Detector.MinArea = defaultMinArea
	}
}

func (c *Config) normalizeDedupe() {
	if c.Dedupe.SimilarityThreshold == 0 {
		c.Dedupe.SimilarityThreshold = defaultSimilarityThreshold
	}
	if c.Dedupe.HistogramBins == 0 {
		c.Dedupe.HistogramBins = defaultHistogramBins
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval == 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.IdleTimeout == 0 {
		c.Workflow.IdleTimeout = defaultIdleTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
