package dedupe

import (
	"gocv.io/x/gocv"
)

// fingerprint computes a normalized joint HSV histogram for a BGR crop. The
// three channels share one bin count, giving bins cubed buckets total.
func fingerprint(img gocv.Mat, bins int) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()

	hist := gocv.NewMat()
	gocv.CalcHist(
		[]gocv.Mat{hsv},
		[]int{0, 1, 2},
		mask,
		&hist,
		[]int{bins, bins, bins},
		[]float64{0, 180, 0, 256, 0, 256},
		false,
	)
	gocv.Normalize(hist, &hist, 1, 0, gocv.NormL2)
	return hist
}

// similarity compares two fingerprints by histogram correlation. Results
// range from -1 to 1, with 1 meaning identical distributions.
func similarity(a, b gocv.Mat) float64 {
	return float64(gocv.CompareHist(a, b, gocv.HistCmpCorrel))
}
