package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queued video job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScaling    Status = "scaling"
	StatusExtracting Status = "extracting"
	StatusFiltering  Status = "filtering"
	StatusSaving     Status = "saving"
	StatusMoving     Status = "moving"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusScaling,
	StatusExtracting,
	StatusFiltering,
	StatusSaving,
	StatusMoving,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusScaling:    {},
	StatusExtracting: {},
	StatusFiltering:  {},
	StatusSaving:     {},
	StatusMoving:     {},
}

// Job represents a queued video persisted in SQLite.
type Job struct {
	ID                 int64
	SourcePath         string
	Title              string
	DownloadDir        string
	ScaledPath         string
	Status             Status
	Percent            int
	ProgressMessage    string
	VehiclesDetected   int
	VehiclesWithPlates int
	ShotsSaved         int
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight pipeline stage.
func (j Job) IsProcessing() bool {
	_, ok := processingStatuses[j.Status]
	return ok
}

// IsTerminal reports whether the job has reached a final state.
func (j Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// SetProgress moves the job to a stage with the given completion percent.
// Percent never regresses within a run.
func (j *Job) SetProgress(status Status, percent int, message string) {
	j.Status = status
	if percent > j.Percent {
		j.Percent = percent
	}
	j.ProgressMessage = message
}

// SetCompleted marks the job as successfully finished.
func (j *Job) SetCompleted(message string) {
	j.Status = StatusCompleted
	j.Percent = 100
	j.ProgressMessage = message
	j.ErrorMessage = ""
}

// SetError marks the job as failed with the given error message.
func (j *Job) SetError(message string) {
	j.Status = StatusError
	j.ErrorMessage = message
	j.ProgressMessage = message
}

// ResetForRetry returns an errored job to pending with its parameters intact.
func (j *Job) ResetForRetry() {
	j.Status = StatusPending
	j.Percent = 0
	j.ProgressMessage = ""
	j.ErrorMessage = ""
	j.ScaledPath = ""
	j.VehiclesDetected = 0
	j.VehiclesWithPlates = 0
	j.ShotsSaved = 0
}

// Summary describes aggregated queue counts per key lifecycle states.
type Summary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Errored    int
}
