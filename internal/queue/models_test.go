package queue

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  Status
		ok    bool
	}{
		{"pending", StatusPending, true},
		{" Completed ", StatusCompleted, true},
		{"EXTRACTING", StatusExtracting, true},
		{"bogus", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseStatus(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSetProgressNeverRegresses(t *testing.T) {
	job := &Job{}
	job.SetProgress(StatusExtracting, 50, "done scanning")
	job.SetProgress(StatusFiltering, 40, "late update")
	if job.Percent != 50 {
		t.Fatalf("percent = %d, want 50", job.Percent)
	}
	if job.Status != StatusFiltering {
		t.Fatalf("status = %s, want filtering", job.Status)
	}
	job.SetProgress(StatusFiltering, 80, "filtered")
	if job.Percent != 80 {
		t.Fatalf("percent = %d, want 80", job.Percent)
	}
}

func TestSetCompletedClearsError(t *testing.T) {
	job := &Job{}
	job.SetError("boom")
	job.SetCompleted("all good")
	if job.Status != StatusCompleted || job.Percent != 100 {
		t.Fatalf("job = %s/%d, want completed/100", job.Status, job.Percent)
	}
	if job.ErrorMessage != "" {
		t.Fatalf("error message = %q, want empty", job.ErrorMessage)
	}
}

func TestLifecyclePredicates(t *testing.T) {
	job := Job{Status: StatusScaling}
	if !job.IsProcessing() || job.IsTerminal() {
		t.Fatal("scaling should be processing and not terminal")
	}
	job.Status = StatusCompleted
	if job.IsProcessing() || !job.IsTerminal() {
		t.Fatal("completed should be terminal and not processing")
	}
	job.Status = StatusPending
	if job.IsProcessing() || job.IsTerminal() {
		t.Fatal("pending should be neither processing nor terminal")
	}
}
