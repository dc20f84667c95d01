package extract

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"

	"gocv.io/x/gocv"

	"platewatch/internal/services/detector"
)

const (
	testFrameWidth  = 1920
	testFrameHeight = 1080
)

type fakeStream struct {
	frames []fakeFrame
	index  int
	mat    gocv.Mat
}

type fakeFrame struct {
	detections []detector.Detection
}

func newFakeStream(frames ...fakeFrame) *fakeStream {
	return &fakeStream{
		frames: frames,
		mat:    gocv.NewMatWithSize(testFrameHeight, testFrameWidth, gocv.MatTypeCV8UC3),
	}
}

func (s *fakeStream) Next() (*detector.FrameResult, error) {
	if s.index >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.index]
	s.index++
	return &detector.FrameResult{Frame: s.mat, Detections: frame.detections}, nil
}

func (s *fakeStream) Close() error {
	s.mat.Close()
	return nil
}

func det(id int64, box image.Rectangle) detector.Detection {
	return detector.Detection{TrackID: id, Class: detector.ClassCar, Confidence: 0.9, Box: box}
}

func consume(t *testing.T, policy Policy, minArea int, frames ...fakeFrame) map[int64]*Crop {
	t.Helper()
	stream := newFakeStream(frames...)
	defer stream.Close()
	agg := NewAggregator(Config{Policy: policy, MinArea: minArea})
	if err := agg.Consume(context.Background(), stream, nil); err != nil {
		t.Fatalf("consume: %v", err)
	}
	crops := agg.Finalize()
	t.Cleanup(func() {
		for _, crop := range crops {
			crop.Close()
		}
	})
	return crops
}

func TestAggregatorMinAreaFilter(t *testing.T) {
	crops := consume(t, PolicyComplete, 40000,
		fakeFrame{detections: []detector.Detection{
			det(1, image.Rect(100, 100, 250, 250)),
			det(2, image.Rect(100, 100, 400, 400)),
		}},
	)
	if len(crops) != 1 {
		t.Fatalf("expected one surviving track, got %d", len(crops))
	}
	if _, ok := crops[2]; !ok {
		t.Fatal("expected track 2 to survive the area filter")
	}
}

func TestAggregatorPolicyFirstKeepsInitial(t *testing.T) {
	crops := consume(t, PolicyFirst, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 300, 300))}},
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 800, 800))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if crop.Area != 200*200 {
		t.Fatalf("expected first detection kept, got area %d", crop.Area)
	}
}

func TestAggregatorPolicyLargestPrefersBiggerBox(t *testing.T) {
	crops := consume(t, PolicyLargest, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 300, 300))}},
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 800, 800))}},
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 500, 500))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if crop.Area != 700*700 {
		t.Fatalf("expected largest detection kept, got area %d", crop.Area)
	}
}

func TestAggregatorPolicyCompleteBeatsIncomplete(t *testing.T) {
	// Larger box touching the frame edge, then a smaller fully-inside one.
	crops := consume(t, PolicyComplete, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(0, 100, 900, 900))}},
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 400, 400))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if !crop.Complete {
		t.Fatal("expected the complete detection to win")
	}
	if crop.Area != 300*300 {
		t.Fatalf("expected complete box area 90000, got %d", crop.Area)
	}
}

func TestAggregatorPolicyCompleteNeverDowngrades(t *testing.T) {
	crops := consume(t, PolicyComplete, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 400, 400))}},
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(0, 0, 1200, 1000))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if !crop.Complete {
		t.Fatal("incomplete detection replaced a complete one")
	}
}

func TestAggregatorPolicyCompleteAreaTiebreak(t *testing.T) {
	crops := consume(t, PolicyComplete, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 400, 400))}},
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 700, 700))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if crop.Area != 600*600 {
		t.Fatalf("expected larger complete box kept, got area %d", crop.Area)
	}
}

func TestAggregatorCropDimensionsIncludeMargin(t *testing.T) {
	crops := consume(t, PolicyComplete, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 400, 400))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if got := crop.Image.Cols(); got != 310 {
		t.Fatalf("expected crop width 310, got %d", got)
	}
	if got := crop.Image.Rows(); got != 310 {
		t.Fatalf("expected crop height 310, got %d", got)
	}
}

func TestAggregatorCropClampsToFrame(t *testing.T) {
	crops := consume(t, PolicyLargest, 0,
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(0, 0, 300, 300))}},
	)
	crop := crops[1]
	if crop == nil {
		t.Fatal("missing crop for track 1")
	}
	if got := crop.Image.Cols(); got != 305 {
		t.Fatalf("expected crop width 305, got %d", got)
	}
	if got := crop.Image.Rows(); got != 305 {
		t.Fatalf("expected crop height 305, got %d", got)
	}
}

func TestAggregatorSecondConsumeFails(t *testing.T) {
	agg := NewAggregator(Config{Policy: PolicyComplete})
	first := newFakeStream()
	defer first.Close()
	if err := agg.Consume(context.Background(), first, nil); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	second := newFakeStream()
	defer second.Close()
	if err := agg.Consume(context.Background(), second, nil); !errors.Is(err, ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", err)
	}
	agg.Reset()
	third := newFakeStream()
	defer third.Close()
	if err := agg.Consume(context.Background(), third, nil); err != nil {
		t.Fatalf("consume after reset: %v", err)
	}
}

func TestAggregatorProgressCallback(t *testing.T) {
	stream := newFakeStream(
		fakeFrame{detections: []detector.Detection{det(1, image.Rect(100, 100, 400, 400))}},
		fakeFrame{},
	)
	defer stream.Close()
	agg := NewAggregator(Config{Policy: PolicyComplete})
	var frames, tracks int
	if err := agg.Consume(context.Background(), stream, func(f, tr int) { frames, tracks = f, tr }); err != nil {
		t.Fatalf("consume: %v", err)
	}
	defer agg.Reset()
	if frames != 2 || tracks != 1 {
		t.Fatalf("expected progress (2 frames, 1 track), got (%d, %d)", frames, tracks)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", PolicyComplete, false},
		{"first", PolicyFirst, false},
		{"largest", PolicyLargest, false},
		{"complete", PolicyComplete, false},
		{"best", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePolicy(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePolicy(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
