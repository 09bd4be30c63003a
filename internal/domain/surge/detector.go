package surge

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const thresholdSigmas = 1.5

// Threshold returns the historical mean and the surge threshold
// mean + 1.5 * sample standard deviation.
func Threshold(samples []Sample) (mean, threshold float64) {
	counts := make([]float64, len(samples))
	for i, s := range samples {
		counts[i] = s.PatientCount
	}
	if len(counts) == 0 {
		return 0, 0
	}
	mean, std := stat.MeanStdDev(counts, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, mean + thresholdSigmas*std
}

// Detect reports whether any point exceeds the threshold.
func Detect(points []Point, threshold float64) bool {
	for _, p := range points {
		if float64(p.PredictedCount) > threshold {
			return true
		}
	}
	return false
}

// Peak returns the point with the highest predicted count, earliest first on
// ties, or nil for an empty forecast.
func Peak(points []Point) *Point {
	if len(points) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(points); i++ {
		if points[i].PredictedCount > points[best].PredictedCount {
			best = i
		}
	}
	p := points[best]
	return &p
}
