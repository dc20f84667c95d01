package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestNewJobStartsPending(t *testing.T) {
	store := newTestStore(t)

	job, err := store.NewJob(context.Background(), "/videos/cam.mp4", "Cam", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Status != StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.Percent != 0 {
		t.Fatalf("percent = %d, want 0", job.Percent)
	}
	if job.Title != "Cam" || job.SourcePath != "/videos/cam.mp4" {
		t.Fatalf("unexpected job fields: %+v", job)
	}
}

func TestNewJobRequiresSourcePath(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.NewJob(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected error for empty source path")
	}
}

func TestGetByIDUnknownReturnsNil(t *testing.T) {
	store := newTestStore(t)
	job, err := store.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for unknown id, got %+v", job)
	}
}

func TestUpdateRoundTripsCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.NewJob(ctx, "/videos/cam.mp4", "Cam", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	job.SetProgress(StatusSaving, 85, "saving shots")
	job.VehiclesDetected = 5
	job.VehiclesWithPlates = 3
	job.ShotsSaved = 3
	job.ScaledPath = "/videos/cam_FHD.mp4"
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusSaving || stored.Percent != 85 {
		t.Fatalf("stored = %s/%d, want saving/85", stored.Status, stored.Percent)
	}
	if stored.VehiclesDetected != 5 || stored.VehiclesWithPlates != 3 || stored.ShotsSaved != 3 {
		t.Fatalf("counters = %d/%d/%d, want 5/3/3",
			stored.VehiclesDetected, stored.VehiclesWithPlates, stored.ShotsSaved)
	}
	if stored.ScaledPath != "/videos/cam_FHD.mp4" {
		t.Fatalf("scaled path = %q", stored.ScaledPath)
	}
}

func TestNextPendingReturnsOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if _, err := store.NewJob(ctx, "/videos/b.mp4", "B", "/videos"); err != nil {
		t.Fatalf("new job: %v", err)
	}

	next, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("next = %+v, want job %d", next, first.ID)
	}

	next.SetCompleted("done")
	if err := store.Update(ctx, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	second, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if second == nil || second.Title != "B" {
		t.Fatalf("expected job B next, got %+v", second)
	}
}

func TestNextPendingEmptyQueue(t *testing.T) {
	store := newTestStore(t)
	job, err := store.NextPending(context.Background())
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil on empty queue, got %+v", job)
	}
}

func TestClaimNextPendingTakesRowsExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	second, err := store.NewJob(ctx, "/videos/b.mp4", "B", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	claimed, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed = %+v, want job %d", claimed, first.ID)
	}
	if claimed.Status != StatusScaling {
		t.Fatalf("claimed status = %s, want scaling", claimed.Status)
	}

	stored, err := store.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != StatusScaling {
		t.Fatalf("persisted status = %s, want scaling", stored.Status)
	}

	// The claimed row is gone from the pending view shared with other pollers.
	next, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("next pending: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("next pending = %+v, want job %d", next, second.ID)
	}

	if claimed, err = store.ClaimNextPending(ctx); err != nil || claimed == nil || claimed.ID != second.ID {
		t.Fatalf("second claim = %+v (%v), want job %d", claimed, err, second.ID)
	}
	if claimed, err = store.ClaimNextPending(ctx); err != nil || claimed != nil {
		t.Fatalf("expected drained queue, got %+v (%v)", claimed, err)
	}
}

func TestRetrySemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Retry(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	job, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if _, err := store.Retry(ctx, job.ID); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable for pending job, got %v", err)
	}

	job.SetError("detector crashed")
	job.VehiclesDetected = 2
	job.ScaledPath = "/videos/a_FHD.mp4"
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	retried, err := store.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != StatusPending {
		t.Fatalf("status = %s, want pending", retried.Status)
	}
	if retried.ErrorMessage != "" || retried.VehiclesDetected != 0 || retried.ScaledPath != "" {
		t.Fatalf("retry did not reset job: %+v", retried)
	}
	if retried.SourcePath != "/videos/a.mp4" {
		t.Fatalf("retry lost source path: %q", retried.SourcePath)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	done, err := store.NewJob(ctx, "/videos/b.mp4", "B", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	done.SetCompleted("done")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list all = %d jobs, want 2", len(all))
	}

	pendingOnly, err := store.List(ctx, StatusPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pendingOnly) != 1 || pendingOnly[0].ID != pending.ID {
		t.Fatalf("pending list = %+v", pendingOnly)
	}
}

func TestClearRemovesTerminalJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos"); err != nil {
		t.Fatalf("new job: %v", err)
	}
	done, err := store.NewJob(ctx, "/videos/b.mp4", "B", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	done.SetCompleted("done")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	removed, err := store.Clear(ctx, false)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	removed, err = store.Clear(ctx, true)
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed all = %d, want 1", removed)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.SetProgress(StatusFiltering, 60, "mid-run")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("reset stuck: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset = %d, want 1", reset)
	}

	stored, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusPending || stored.Percent != 0 {
		t.Fatalf("stored = %s/%d, want pending/0", stored.Status, stored.Percent)
	}
}

func TestSummarizeBuckets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.NewJob(ctx, "/videos/a.mp4", "A", "/videos"); err != nil {
			t.Fatalf("new job: %v", err)
		}
	}
	working, err := store.NewJob(ctx, "/videos/b.mp4", "B", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	working.SetProgress(StatusExtracting, 20, "scanning")
	if err := store.Update(ctx, working); err != nil {
		t.Fatalf("update: %v", err)
	}
	failed, err := store.NewJob(ctx, "/videos/c.mp4", "C", "/videos")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	failed.SetError("boom")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("update: %v", err)
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := Summary{Total: 4, Pending: 2, Processing: 1, Errored: 1}
	if summary != want {
		t.Fatalf("summary = %+v, want %+v", summary, want)
	}
}
