package dedupe

import (
	"sort"

	"gocv.io/x/gocv"

	"platewatch/internal/extract"
	"platewatch/internal/services/detector"
)

// Config controls duplicate collapsing.
type Config struct {
	// SimilarityThreshold is the histogram correlation above which two crops
	// of the same class are treated as the same vehicle.
	SimilarityThreshold float64
	// HistogramBins is the per-channel bin count of the HSV fingerprint.
	HistogramBins int
}

// Progress receives processed and total crop counts as collapsing advances.
// May be nil.
type Progress func(done, total int)

// Collapse removes visually duplicate crops. Crops are compared only within
// the same vehicle class, largest area first, so when two crops match the
// bigger one survives. Discarded crops are closed; survivors are returned
// keyed by track id with ownership unchanged.
func Collapse(crops map[int64]*Crop, cfg Config, progress Progress) map[int64]*Crop {
	byClass := make(map[detector.Class][]*Crop)
	for _, crop := range crops {
		byClass[crop.Class] = append(byClass[crop.Class], crop)
	}

	total := len(crops)
	done := 0
	kept := make(map[int64]*Crop, total)

	for _, group := range byClass {
		sort.Slice(group, func(i, j int) bool {
			if group[i].Area != group[j].Area {
				return group[i].Area > group[j].Area
			}
			return group[i].TrackID < group[j].TrackID
		})

		survivors := make([]gocv.Mat, 0, len(group))
		for _, crop := range group {
			hist := fingerprint(crop.Image, cfg.HistogramBins)
			duplicate := false
			for _, keptHist := range survivors {
				if similarity(hist, keptHist) > cfg.SimilarityThreshold {
					duplicate = true
					break
				}
			}
			if duplicate {
				hist.Close()
				crop.Close()
			} else {
				survivors = append(survivors, hist)
				kept[crop.TrackID] = crop
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
		for i := range survivors {
			survivors[i].Close()
		}
	}
	return kept
}

// Crop aliases the extractor's crop record.
type Crop = extract.Crop
