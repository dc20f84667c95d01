package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"platewatch/internal/config"
	"platewatch/internal/logging"
	"platewatch/internal/queue"
	"platewatch/internal/testsupport"
	"platewatch/internal/workflow"
)

func newTestDaemon(t *testing.T) (*Daemon, *config.Config, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	processor := workflow.NewProcessor(cfg, store, nil, nil, nil, nil, nil, nil)
	manager := workflow.NewManager(cfg, store, processor, nil, nil)

	d, err := New(cfg, store, logging.NewNop(), manager)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, cfg, store
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestAddFileEnqueuesSupportedVideo(t *testing.T) {
	d, cfg, store := newTestDaemon(t)

	source := filepath.Join(cfg.Paths.DownloadDir, "gate.webm")
	if err := os.WriteFile(source, []byte("video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	job, err := d.AddFile(context.Background(), source)
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	stored, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored == nil || stored.SourcePath != source {
		t.Fatalf("stored job = %+v, want source %s", stored, source)
	}
}

func TestAddFileRejectsInvalidSources(t *testing.T) {
	d, cfg, _ := newTestDaemon(t)
	ctx := context.Background()

	if _, err := d.AddFile(ctx, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := d.AddFile(ctx, cfg.Paths.DownloadDir); err == nil {
		t.Fatal("expected error for directory")
	}
	if _, err := d.AddFile(ctx, filepath.Join(cfg.Paths.DownloadDir, "missing.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}

	notes := filepath.Join(cfg.Paths.DownloadDir, "notes.txt")
	if err := os.WriteFile(notes, []byte("text"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := d.AddFile(ctx, notes); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestStartRefusesWhenLockHeld(t *testing.T) {
	d, cfg, _ := newTestDaemon(t)

	other := flock.New(LockPath(cfg))
	locked, err := other.TryLock()
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if !locked {
		t.Fatal("expected to acquire the lock")
	}

	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected start to fail while the lock is held")
	}

	if err := other.Unlock(); err != nil {
		t.Fatalf("release lock: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	d.Stop()
}
