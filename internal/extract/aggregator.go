package extract

import (
	"context"
	"errors"
	"image"
	"io"

	"gocv.io/x/gocv"

	"platewatch/internal/services/detector"
)

const (
	// borderMargin is the distance from the frame edge inside which a box
	// counts as touching the border (vehicle partially out of frame).
	borderMargin = 10
	// cropMargin is the safety padding added around an accepted box before
	// cropping, clamped to the frame.
	cropMargin = 5
)

// ErrConsumed is returned when an aggregator is asked to consume a second
// stream without a Reset in between.
var ErrConsumed = errors.New("aggregator already consumed a stream")

// Config controls aggregation.
type Config struct {
	Policy  Policy
	MinArea int
}

// Progress receives the frame count and current distinct-track count as the
// aggregator advances. Used for percent reporting; may be nil.
type Progress func(frames, tracks int)

// Aggregator reduces a detection stream to one best crop per track id.
type Aggregator struct {
	cfg      Config
	crops    map[int64]*Crop
	consumed bool
}

// NewAggregator builds an aggregator for one video run.
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:   cfg,
		crops: make(map[int64]*Crop),
	}
}

// Consume drains the stream, keeping the best crop per track id under the
// configured policy. The stream is finite and non-restartable; Consume may be
// called once per Reset.
func (a *Aggregator) Consume(ctx context.Context, stream detector.Stream, progress Progress) error {
	if a.consumed {
		return ErrConsumed
	}
	a.consumed = true

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		frames++
		for _, det := range result.Detections {
			a.observe(result.Frame, det)
		}
		if progress != nil {
			progress(frames, len(a.crops))
		}
	}
}

// observe applies the minimum area filter and selection policy to one
// detection, replacing the stored crop when the detection wins.
func (a *Aggregator) observe(frame gocv.Mat, det detector.Detection) {
	box := det.Box.Canon()
	area := box.Dx() * box.Dy()
	if area < a.cfg.MinArea {
		return
	}

	width := frame.Cols()
	height := frame.Rows()
	complete := box.Min.X >= borderMargin &&
		box.Min.Y >= borderMargin &&
		box.Max.X <= width-borderMargin &&
		box.Max.Y <= height-borderMargin

	current := a.crops[det.TrackID]
	if !a.shouldReplace(current, area, complete) {
		return
	}

	safe := image.Rect(
		max(0, box.Min.X-cropMargin),
		max(0, box.Min.Y-cropMargin),
		min(width, box.Max.X+cropMargin),
		min(height, box.Max.Y+cropMargin),
	)
	region := frame.Region(safe)
	cropped := region.Clone()
	region.Close()

	if current != nil {
		current.Close()
	}
	a.crops[det.TrackID] = &Crop{
		TrackID:    det.TrackID,
		Image:      cropped,
		Area:       area,
		Class:      det.Class,
		Confidence: det.Confidence,
		Complete:   complete,
	}
}

func (a *Aggregator) shouldReplace(current *Crop, area int, complete bool) bool {
	if current == nil {
		return true
	}
	switch a.cfg.Policy {
	case PolicyFirst:
		return false
	case PolicyLargest:
		return area > current.Area
	default: // PolicyComplete
		if complete != current.Complete {
			return complete
		}
		return area > current.Area
	}
}

// Finalize returns the track id to crop mapping. Ownership of the crops (and
// their Mats) passes to the caller.
func (a *Aggregator) Finalize() map[int64]*Crop {
	crops := a.crops
	a.crops = make(map[int64]*Crop)
	return crops
}

// Reset discards any held crops and allows the aggregator to consume again.
func (a *Aggregator) Reset() {
	for _, crop := range a.crops {
		crop.Close()
	}
	a.crops = make(map[int64]*Crop)
	a.consumed = false
}
