package detector

import "image"

const (
	// iouMatchThreshold is the minimum overlap to continue an existing track.
	iouMatchThreshold = 0.3
	// maxMissedFrames is how long a track survives without a match before the
	// id is retired. A vehicle re-detected later gets a fresh id; the
	// downstream duplicate collapser folds those back together.
	maxMissedFrames = 30
)

type track struct {
	id     int64
	class  Class
	box    image.Rectangle
	missed int
}

// iouTracker continues track ids across frames by greedy IoU matching within
// the same class.
type iouTracker struct {
	tracks []*track
	nextID int64
}

func newIOUTracker() *iouTracker {
	return &iouTracker{nextID: 1}
}

// assign matches detections against live tracks and stamps track ids.
func (t *iouTracker) assign(detections []Detection) []Detection {
	matched := make(map[*track]bool, len(t.tracks))
	out := make([]Detection, 0, len(detections))

	for _, det := range detections {
		var (
			best    *track
			bestIoU float64
		)
		for _, tr := range t.tracks {
			if matched[tr] || tr.class != det.Class {
				continue
			}
			overlap := iou(tr.box, det.Box)
			if overlap > bestIoU {
				bestIoU = overlap
				best = tr
			}
		}

		if best != nil && bestIoU >= iouMatchThreshold {
			best.box = det.Box
			best.missed = 0
			matched[best] = true
			det.TrackID = best.id
		} else {
			tr := &track{id: t.nextID, class: det.Class, box: det.Box}
			t.nextID++
			t.tracks = append(t.tracks, tr)
			matched[tr] = true
			det.TrackID = tr.id
		}
		out = append(out, det)
	}

	live := t.tracks[:0]
	for _, tr := range t.tracks {
		if !matched[tr] {
			tr.missed++
		}
		if tr.missed <= maxMissedFrames {
			live = append(live, tr)
		}
	}
	t.tracks = live

	return out
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
