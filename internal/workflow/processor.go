package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"platewatch/internal/config"
	"platewatch/internal/dedupe"
	"platewatch/internal/extract"
	"platewatch/internal/logging"
	"platewatch/internal/notifications"
	"platewatch/internal/queue"
	"platewatch/internal/services"
	"platewatch/internal/services/alpr"
	"platewatch/internal/services/detector"
	"platewatch/internal/services/ffmpeg"
	"platewatch/internal/services/smb"
	"platewatch/internal/titles"
)

// Percent milestones per stage. Percent never regresses within a run.
const (
	percentScaling      = 5
	percentExtractStart = 15
	percentExtractDone  = 50
	percentFilterStart  = 55
	percentFilterDedupe = 65
	percentFilterDone   = 80
	percentSavingStart  = 85
	percentSavingDone   = 90
	percentMoving       = 95
)

// progressUpdateInterval is the frame interval between progress message
// updates while a video is being scanned.
const progressUpdateInterval = 30

// Processor runs one job through every pipeline stage.
type Processor struct {
	cfg      *config.Config
	store    *queue.Store
	detector detector.Service
	plates   alpr.Validator
	scaler   ffmpeg.Scaler
	mover    smb.Mover
	notifier notifications.Service
	logger   *slog.Logger
}

// NewProcessor wires the stage collaborators together.
func NewProcessor(
	cfg *config.Config,
	store *queue.Store,
	svc detector.Service,
	plates alpr.Validator,
	scaler ffmpeg.Scaler,
	mover smb.Mover,
	notifier notifications.Service,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		cfg:      cfg,
		store:    store,
		detector: svc,
		plates:   plates,
		scaler:   scaler,
		mover:    mover,
		notifier: notifier,
		logger:   logger,
	}
}

// Process drives a pending job to a terminal state. Scaling and transfer
// failures degrade the run instead of failing it; detection, filtering, and
// save failures mark the job errored.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, p.logger)

	logger.Info("processing job",
		logging.String("source", job.SourcePath),
		logging.String(logging.FieldEventType, "job_start"),
	)
	p.notify(ctx, logger, func() error {
		return p.notifier.NotifyJobStarted(ctx, job.Title)
	})

	videoPath, err := p.runScaling(ctx, logger, job)
	if err != nil {
		return p.fail(ctx, logger, job, err)
	}

	crops, err := p.runExtracting(ctx, logger, job, videoPath)
	if err != nil {
		return p.fail(ctx, logger, job, err)
	}
	defer closeCrops(crops)

	job.VehiclesDetected = len(crops)
	if len(crops) == 0 {
		return p.complete(ctx, logger, job, "no vehicles detected")
	}

	plates, err := p.runFiltering(ctx, logger, job, crops)
	if err != nil {
		return p.fail(ctx, logger, job, err)
	}
	job.VehiclesWithPlates = len(plates)
	if len(plates) == 0 {
		return p.complete(ctx, logger, job, "no vehicles with readable plates")
	}

	shotsDir, err := p.runSaving(ctx, logger, job, crops, plates)
	if err != nil {
		return p.fail(ctx, logger, job, err)
	}

	message := fmt.Sprintf("%d shots saved", job.ShotsSaved)
	if p.mover != nil {
		if moveMsg := p.runMoving(ctx, logger, job, shotsDir); moveMsg != "" {
			message = message + "; " + moveMsg
		}
	}

	return p.complete(ctx, logger, job, message)
}

// runScaling bounds the video to full HD. Failures are logged and the
// original file is used instead.
func (p *Processor) runScaling(ctx context.Context, logger *slog.Logger, job *queue.Job) (string, error) {
	if err := p.advance(ctx, job, queue.StatusScaling, percentScaling, "bounding video to full HD"); err != nil {
		return "", err
	}
	if p.scaler == nil {
		return job.SourcePath, nil
	}

	path, err := p.scaler.EnsureBounded(ctx, job.SourcePath)
	if err != nil {
		logger.Warn("video scaling failed, continuing with original file",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scaling_failed"),
		)
		return job.SourcePath, nil
	}
	if path != job.SourcePath {
		job.ScaledPath = path
		logger.Info("video bounded to full HD", logging.String("scaled_path", path))
	}
	return path, nil
}

// runExtracting scans the video and reduces detections to one crop per track.
func (p *Processor) runExtracting(ctx context.Context, logger *slog.Logger, job *queue.Job, videoPath string) (map[int64]*extract.Crop, error) {
	if err := p.advance(ctx, job, queue.StatusExtracting, percentExtractStart, "detecting vehicles"); err != nil {
		return nil, err
	}

	policy, err := extract.ParsePolicy(p.cfg.Detector.Strategy)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extracting", "parse strategy", "", err)
	}

	stream, err := p.detector.Track(ctx, videoPath, detector.Options{
		Classes:       detector.VehicleClasses(),
		MinConfidence: p.cfg.Detector.MinConfidence,
		Device:        p.cfg.Detector.Device,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extracting", "open video", "", err)
	}
	defer stream.Close()

	agg := extract.NewAggregator(extract.Config{
		Policy:  policy,
		MinArea: p.cfg.Detector.MinArea,
	})
	consumeErr := agg.Consume(ctx, stream, func(frames, tracks int) {
		if frames%progressUpdateInterval != 0 {
			return
		}
		message := fmt.Sprintf("processed %d frames, %d vehicles tracked", frames, tracks)
		if err := p.advance(ctx, job, queue.StatusExtracting, percentExtractStart, message); err != nil {
			logger.Warn("progress update failed", logging.Error(err))
		}
	})
	if consumeErr != nil {
		agg.Reset()
		return nil, services.Wrap(services.ErrExternalTool, "extracting", "scan video", "", consumeErr)
	}

	crops := agg.Finalize()
	message := fmt.Sprintf("%d vehicles tracked", len(crops))
	if err := p.advance(ctx, job, queue.StatusExtracting, percentExtractDone, message); err != nil {
		closeCrops(crops)
		return nil, err
	}
	logger.Info("vehicle tracking finished",
		logging.Int("vehicles", len(crops)),
		logging.String(logging.FieldEventType, "extracting_done"),
	)
	return crops, nil
}

// runFiltering collapses visual duplicates, then drops crops without a valid
// plate. Returns plate text keyed by surviving track id. The crops map is
// mutated in place.
func (p *Processor) runFiltering(ctx context.Context, logger *slog.Logger, job *queue.Job, crops map[int64]*extract.Crop) (map[int64]string, error) {
	if err := p.advance(ctx, job, queue.StatusFiltering, percentFilterStart, "collapsing duplicates"); err != nil {
		return nil, err
	}

	kept := dedupe.Collapse(crops, dedupe.Config{
		SimilarityThreshold: p.cfg.Dedupe.SimilarityThreshold,
		HistogramBins:       p.cfg.Dedupe.HistogramBins,
	}, func(done, total int) {
		percent := percentFilterStart + done*(percentFilterDedupe-percentFilterStart)/total
		message := fmt.Sprintf("compared %d of %d crops", done, total)
		if err := p.advance(ctx, job, queue.StatusFiltering, percent, message); err != nil {
			logger.Warn("progress update failed", logging.Error(err))
		}
	})
	for id := range crops {
		if _, ok := kept[id]; !ok {
			delete(crops, id)
		}
	}
	logger.Info("duplicates collapsed", logging.Int("remaining", len(crops)))

	plates := make(map[int64]string, len(crops))
	ids := sortedTrackIDs(crops)
	for i, id := range ids {
		crop := crops[id]
		ok, plate, err := p.plates.HasPlate(ctx, crop.Image, crop.Class)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("plate recognition failed, dropping crop",
				logging.Int64("track_id", id),
				logging.Error(err),
			)
			ok = false
		}
		if !ok {
			crop.Close()
			delete(crops, id)
		} else {
			plates[id] = plate
		}
		percent := percentFilterDedupe + (i+1)*(percentFilterDone-percentFilterDedupe)/len(ids)
		message := fmt.Sprintf("validated plates on %d of %d vehicles", i+1, len(ids))
		if err := p.advance(ctx, job, queue.StatusFiltering, percent, message); err != nil {
			logger.Warn("progress update failed", logging.Error(err))
		}
	}
	logger.Info("plate validation finished",
		logging.Int("with_plates", len(plates)),
		logging.String(logging.FieldEventType, "filtering_done"),
	)
	return plates, nil
}

// runSaving writes one shot per surviving crop plus a plate listing under the
// job's shots directory.
func (p *Processor) runSaving(ctx context.Context, logger *slog.Logger, job *queue.Job, crops map[int64]*extract.Crop, plates map[int64]string) (string, error) {
	if err := p.advance(ctx, job, queue.StatusSaving, percentSavingStart, "saving shots"); err != nil {
		return "", err
	}

	videoName := titles.VideoName(job.SourcePath)
	shotsDir := filepath.Join(job.DownloadDir, "shots", videoName)
	if err := os.MkdirAll(shotsDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "saving", "create shots directory", "", err)
	}

	saved := 0
	var listing strings.Builder
	for _, id := range sortedTrackIDs(crops) {
		crop := crops[id]
		shotPath := filepath.Join(shotsDir, crop.Filename(videoName))
		if ok := gocv.IMWrite(shotPath, crop.Image); !ok {
			logger.Warn("shot write failed",
				logging.Int64("track_id", id),
				logging.String("path", shotPath),
			)
			continue
		}
		saved++
		fmt.Fprintf(&listing, "id%d\t%s\t%s\n", id, crop.Class, plates[id])
	}
	if saved > 0 {
		listingPath := filepath.Join(shotsDir, "plates.txt")
		if err := os.WriteFile(listingPath, []byte(listing.String()), 0o644); err != nil {
			logger.Warn("plate listing write failed", logging.Error(err))
		}
	}

	job.ShotsSaved = saved
	message := fmt.Sprintf("saved %d shots", saved)
	if err := p.advance(ctx, job, queue.StatusSaving, percentSavingDone, message); err != nil {
		return "", err
	}
	logger.Info("shots saved",
		logging.Int("shots", saved),
		logging.String("dir", shotsDir),
		logging.String(logging.FieldEventType, "saving_done"),
	)
	return shotsDir, nil
}

// runMoving uploads the job's output to the configured share. Transfer
// failures degrade the completion message rather than failing the job.
func (p *Processor) runMoving(ctx context.Context, logger *slog.Logger, job *queue.Job, shotsDir string) string {
	if err := p.advance(ctx, job, queue.StatusMoving, percentMoving, "uploading to share"); err != nil {
		logger.Warn("progress update failed", logging.Error(err))
	}

	videoFiles := []string{job.SourcePath}
	if job.ScaledPath != "" {
		videoFiles = append(videoFiles, job.ScaledPath)
	}
	result, err := p.mover.Move(ctx, job.Title, videoFiles, shotsDir)
	if err != nil {
		logger.Warn("transfer failed, files kept locally",
			logging.Error(err),
			logging.String(logging.FieldEventType, "transfer_failed"),
		)
		return "transfer failed"
	}
	if result.Status == smb.StatusMoved {
		logger.Info("transfer finished",
			logging.String("destination", result.Destination),
			logging.String(logging.FieldEventType, "transfer_done"),
		)
		p.notify(ctx, logger, func() error {
			return p.notifier.NotifyTransferCompleted(ctx, job.Title, result.Destination)
		})
		return "uploaded to " + result.Destination
	}
	return ""
}

// advance moves the job to a stage milestone and persists it. Stage
// transitions are published to the notifier; percent ticks within a stage are
// persisted silently.
func (p *Processor) advance(ctx context.Context, job *queue.Job, status queue.Status, percent int, message string) error {
	transitioned := job.Status != status
	job.SetProgress(status, percent, message)
	if err := p.store.Update(ctx, job); err != nil {
		return err
	}
	if transitioned && p.notifier != nil {
		if err := p.notifier.NotifyJobUpdated(ctx, job); err != nil {
			logging.WithContext(ctx, p.logger).Warn("notification delivery failed", logging.Error(err))
		}
	}
	return nil
}

func (p *Processor) complete(ctx context.Context, logger *slog.Logger, job *queue.Job, message string) error {
	job.SetCompleted(message)
	if err := p.store.Update(ctx, job); err != nil {
		return err
	}
	logger.Info("job completed",
		logging.Int("vehicles", job.VehiclesDetected),
		logging.Int("with_plates", job.VehiclesWithPlates),
		logging.Int("shots", job.ShotsSaved),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	p.notify(ctx, logger, func() error {
		return p.notifier.NotifyJobCompleted(ctx, job.Title, job.VehiclesDetected, job.VehiclesWithPlates, job.ShotsSaved)
	})
	return nil
}

func (p *Processor) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, err error) error {
	job.SetError(services.Message(err))
	if updateErr := p.store.Update(ctx, job); updateErr != nil {
		logger.Error("failed to persist job error", logging.Error(updateErr))
	}
	logger.Error("job failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_failed"),
	)
	p.notify(ctx, logger, func() error {
		return p.notifier.NotifyJobFailed(ctx, job.Title, err)
	})
	return err
}

func (p *Processor) notify(_ context.Context, logger *slog.Logger, send func() error) {
	if p.notifier == nil {
		return
	}
	if err := send(); err != nil {
		logger.Warn("notification delivery failed", logging.Error(err))
	}
}

func sortedTrackIDs(crops map[int64]*extract.Crop) []int64 {
	ids := make([]int64, 0, len(crops))
	for id := range crops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func closeCrops(crops map[int64]*extract.Crop) {
	for _, crop := range crops {
		crop.Close()
	}
}
