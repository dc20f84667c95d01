package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"platewatch/internal/config"
	"platewatch/internal/queue"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newTestService(t *testing.T) (Service, *[]captured) {
	t.Helper()
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	return NewService(&cfg), &requests
}

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyJobAdded(context.Background(), "cam"); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
}

func TestNotifyJobCompletedIncludesCounts(t *testing.T) {
	svc, requests := newTestService(t)

	if err := svc.NotifyJobCompleted(context.Background(), "cam01", 4, 3, 3); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.title != "Platewatch - Complete" {
		t.Fatalf("title = %q", req.title)
	}
	if !strings.Contains(req.body, "4 vehicles") || !strings.Contains(req.body, "3 with plates") {
		t.Fatalf("body missing counts: %q", req.body)
	}
	if req.priority != "high" {
		t.Fatalf("priority = %q, want high", req.priority)
	}
}

func TestNotifyJobUpdatedCarriesStageAndPercent(t *testing.T) {
	svc, requests := newTestService(t)

	job := &queue.Job{Title: "cam01", Status: queue.StatusExtracting, Percent: 30}
	if err := svc.NotifyJobUpdated(context.Background(), job); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if !strings.Contains(req.body, "extracting") || !strings.Contains(req.body, "30%") {
		t.Fatalf("body missing stage or percent: %q", req.body)
	}
	if req.priority != "min" {
		t.Fatalf("priority = %q, want min", req.priority)
	}
}

func TestNotifyJobFailedCarriesReason(t *testing.T) {
	svc, requests := newTestService(t)

	if err := svc.NotifyJobFailed(context.Background(), "cam01", errors.New("model file missing")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	req := (*requests)[0]
	if !strings.Contains(req.body, "model file missing") {
		t.Fatalf("body missing failure reason: %q", req.body)
	}
	if !strings.Contains(req.tags, "alert") {
		t.Fatalf("tags = %q, want alert", req.tags)
	}
}

func TestSendReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic not found", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error from 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error missing status code: %v", err)
	}
}
