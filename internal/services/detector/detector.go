package detector

import (
	"context"
	"image"

	"gocv.io/x/gocv"
)

// Class identifies a vehicle category using COCO class ids.
type Class int

const (
	ClassCar        Class = 2
	ClassMotorcycle Class = 3
	ClassBus        Class = 5
	ClassTruck      Class = 7
)

var classNames = map[Class]string{
	ClassCar:        "car",
	ClassMotorcycle: "motorcycle",
	ClassBus:        "bus",
	ClassTruck:      "truck",
}

// VehicleClasses returns the class ids the pipeline tracks, in stable order.
func VehicleClasses() []Class {
	return []Class{ClassCar, ClassMotorcycle, ClassBus, ClassTruck}
}

// String returns the lowercase class name used in shot filenames.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the class is one of the tracked vehicle categories.
func (c Class) Known() bool {
	_, ok := classNames[c]
	return ok
}

// Detection is one tracked bounding box in a frame.
type Detection struct {
	TrackID    int64
	Class      Class
	Confidence float64
	Box        image.Rectangle
}

// FrameResult is one decoded frame with its detections. The Frame Mat is owned
// by the stream and is only valid until the next call to Next.
type FrameResult struct {
	Frame      gocv.Mat
	Detections []Detection
}

// Stream yields frame results in video order. Next returns io.EOF once the
// video is exhausted; the stream is finite and cannot be restarted.
type Stream interface {
	Next() (*FrameResult, error)
	Close() error
}

// Options configures a tracking run.
type Options struct {
	Classes       []Class
	MinConfidence float64
	Device        string
}

// Service produces a detection stream for a video. Implementations must assign
// stable track ids across frames for the same physical object while it remains
// continuously trackable.
type Service interface {
	Track(ctx context.Context, videoPath string, opts Options) (Stream, error)
}
