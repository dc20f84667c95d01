package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"platewatch/internal/config"
	"platewatch/internal/logging"
	"platewatch/internal/notifications"
	"platewatch/internal/queue"
	"platewatch/internal/services"
	"platewatch/internal/titles"
)

// Manager owns the job queue and the single background worker. Jobs run one
// at a time in submission order; the worker retires after the queue stays
// empty past the idle timeout and is respawned on the next enqueue.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	processor    *Processor
	notifier     notifications.Service
	logger       *slog.Logger
	pollInterval time.Duration
	idleTimeout  time.Duration

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
	working bool
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, processor *Processor, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	idleTimeout := time.Duration(cfg.Workflow.IdleTimeout) * time.Second
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Second
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		processor:    processor,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: pollInterval,
		idleTimeout:  idleTimeout,
	}
}

// Start arms the manager, returns crashed jobs to pending, and spawns a
// worker if work is already queued.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("workflow already started")
	}
	m.baseCtx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.mu.Unlock()

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("returned interrupted jobs to pending", logging.Int64("count", reset))
	}

	m.wg.Add(1)
	go m.supervise(m.baseCtx)
	return nil
}

// supervise watches for pending work and respawns the worker when jobs show
// up from other processes sharing the queue database.
func (m *Manager) supervise(ctx context.Context) {
	defer m.wg.Done()
	for {
		job, err := m.store.NextPending(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Error("failed to poll for pending jobs", logging.Error(err))
			}
		} else if job != nil {
			m.ensureWorker()
		}
		if !m.sleep(ctx, m.pollInterval) {
			return
		}
	}
}

// Stop cancels in-flight work and waits for the worker to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.started = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Enqueue registers a video for processing and wakes the worker.
func (m *Manager) Enqueue(ctx context.Context, sourcePath string) (*queue.Job, error) {
	title := titles.Derive(sourcePath)
	job, err := m.store.NewJob(ctx, sourcePath, title, m.cfg.Paths.DownloadDir)
	if err != nil {
		return nil, err
	}
	m.logger.Info("job queued",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("source", job.SourcePath),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	if m.notifier != nil {
		if notifyErr := m.notifier.NotifyJobAdded(ctx, job.Title); notifyErr != nil {
			m.logger.Warn("notification delivery failed", logging.Error(notifyErr))
		}
	}
	m.ensureWorker()
	return job, nil
}

// Retry returns an errored job to pending and wakes the worker.
func (m *Manager) Retry(ctx context.Context, id int64) (*queue.Job, error) {
	job, err := m.store.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	m.logger.Info("job returned to pending",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "job_retried"),
	)
	m.ensureWorker()
	return job, nil
}

// RunUntilIdle processes queued jobs synchronously until the queue drains.
// Used by the one-shot batch path; the background worker stays untouched.
func (m *Manager) RunUntilIdle(ctx context.Context) (processed, failed int, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}
		job, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			return processed, failed, err
		}
		if job == nil {
			return processed, failed, nil
		}
		if err := m.processJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return processed, failed, err
			}
			failed++
		} else {
			processed++
		}
	}
}

// ensureWorker spawns the background worker when none is running. The
// manager must have been started.
func (m *Manager) ensureWorker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.working {
		return
	}
	m.working = true
	m.wg.Add(1)
	go m.runWorker(m.baseCtx)
}

func (m *Manager) runWorker(ctx context.Context) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.working = false
		m.mu.Unlock()
	}()

	m.logger.Debug("worker started")
	idleSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			m.logger.Error("failed to fetch next job", logging.Error(err))
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if time.Since(idleSince) >= m.idleTimeout {
				m.logger.Debug("worker retiring after idle timeout")
				return
			}
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		if err := m.processJob(ctx, job); err != nil && errors.Is(err, context.Canceled) {
			return
		}
		idleSince = time.Now()
	}
}

// processJob runs one claimed job under a fresh correlation id. The claim
// already moved the row out of pending, so its stage transition is published
// here.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) error {
	runCtx := services.WithRequestID(ctx, uuid.NewString())
	if m.notifier != nil {
		if err := m.notifier.NotifyJobUpdated(runCtx, job); err != nil {
			m.logger.Warn("notification delivery failed", logging.Error(err))
		}
	}
	return m.processor.Process(runCtx, job)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
