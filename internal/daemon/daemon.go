package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"platewatch/internal/config"
	"platewatch/internal/logging"
	"platewatch/internal/queue"
	"platewatch/internal/titles"
	"platewatch/internal/workflow"
)

// minFreeBytes is the free-space floor below which a startup warning is
// emitted. Scaled videos and shots land on the same volume as the source.
const minFreeBytes = 2 << 30

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Queue        queue.Summary
	QueueDBPath  string
	LockFilePath string
}

// LockPath returns the lock file location guarding single-instance
// processing. One-shot processing commands take the same lock so they cannot
// run concurrently with a daemon sharing the queue database.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "platewatchd.lock")
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := LockPath(cfg)
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		logPath:  filepath.Join(cfg.Paths.LogDir, "platewatch.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another platewatch daemon instance is already running")
	}

	d.checkDiskSpace()

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("platewatch daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("platewatch daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// AddFile enqueues a video file for processing.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (*queue.Job, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	if !titles.IsVideoFile(info.Name()) {
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(info.Name()))
	}
	return d.workflow.Enqueue(ctx, absPath)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.store.Summarize(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Queue:        summary,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}, nil
}

// checkDiskSpace warns when the download volume is close to full.
func (d *Daemon) checkDiskSpace() {
	var stat unix.Statfs_t
	if err := unix.Statfs(d.cfg.Paths.DownloadDir, &stat); err != nil {
		d.logger.Warn("disk space check failed", logging.Error(err))
		return
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		d.logger.Warn("low disk space on download volume",
			logging.String("dir", d.cfg.Paths.DownloadDir),
			logging.Int64("free_bytes", int64(free)),
		)
	}
}
