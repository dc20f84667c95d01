package titles

import "testing"

func TestDerive(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/videos/front_gate-cam.2026-03-01.mp4", "Front Gate Cam 2026 03 01"},
		{"/videos/CAM01.mkv", "Cam01"},
		{"", "Unknown Video"},
		{"/videos/---.mp4", "Unknown Video"},
	}
	for _, tc := range cases {
		if got := Derive(tc.path); got != tc.want {
			t.Errorf("Derive(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestVideoName(t *testing.T) {
	if got := VideoName("/videos/front_gate.mp4"); got != "front_gate" {
		t.Fatalf("VideoName = %q", got)
	}
}

func TestIsVideoFile(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"gate.mp4", true},
		{"gate.MKV", true},
		{"gate.webm", true},
		{"gate.avi", true},
		{"gate.mov", true},
		{"gate.txt", false},
		{"gate", false},
	}
	for _, tc := range cases {
		if got := IsVideoFile(tc.name); got != tc.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
