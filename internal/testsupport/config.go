package testsupport

import (
	"path/filepath"
	"testing"

	"platewatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DownloadDir = filepath.Join(base, "videos")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Detector.ModelPath = filepath.Join(base, "model.onnx")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithStrategy overrides the best-frame selection strategy.
func WithStrategy(strategy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Detector.Strategy = strategy
	}
}

// WithTransfer enables SMB transfer with the provided destination.
func WithTransfer(server, share string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transfer.Enabled = true
		cfg.Transfer.Server = server
		cfg.Transfer.Share = share
	}
}
