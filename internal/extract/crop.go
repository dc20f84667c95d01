package extract

import (
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"platewatch/internal/services/detector"
)

// Crop is the current best image for one track id. It is replaced whole, never
// mutated; the Image Mat is owned by the crop until Close.
type Crop struct {
	TrackID    int64
	Image      gocv.Mat
	Area       int
	Class      detector.Class
	Confidence float64
	Complete   bool
}

// Close releases the underlying image buffer.
func (c *Crop) Close() {
	if c == nil {
		return
	}
	if !c.Image.Empty() {
		c.Image.Close()
	}
}

// Filename returns the deterministic shot name for this crop.
func (c *Crop) Filename(videoName string) string {
	return fmt.Sprintf("%s_%s_id%d_conf%.2f.jpg", videoName, c.Class, c.TrackID, c.Confidence)
}

// Policy selects which detection of a track becomes its crop.
type Policy string

const (
	// PolicyFirst keeps the first accepted detection and ignores the rest.
	PolicyFirst Policy = "first"
	// PolicyLargest keeps the detection with the largest bounding box area.
	PolicyLargest Policy = "largest"
	// PolicyComplete prefers detections whose box does not touch the frame
	// border; area breaks ties between equally complete detections.
	PolicyComplete Policy = "complete"
)

// ParsePolicy converts a config string into a Policy, defaulting to complete.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case PolicyFirst:
		return PolicyFirst, nil
	case PolicyLargest:
		return PolicyLargest, nil
	case PolicyComplete, "":
		return PolicyComplete, nil
	default:
		return "", fmt.Errorf("unknown selection policy %q", value)
	}
}
