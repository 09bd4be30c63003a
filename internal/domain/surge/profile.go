package surge

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Profile is the mean patient count per hour of day. Hours without history
// fall back to the mean of all samples.
type Profile struct {
	means   [24]float64
	seen    [24]bool
	overall float64
}

// Aggregate sorts samples by time and buckets them by hour of day in loc.
// The input slice is not modified.
func Aggregate(samples []Sample, loc *time.Location) Profile {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		p      Profile
		sums   [24]float64
		counts [24]int
	)
	all := make([]float64, len(sorted))
	for i, s := range sorted {
		h := s.Timestamp.In(loc).Hour()
		sums[h] += s.PatientCount
		counts[h]++
		all[i] = s.PatientCount
	}
	for h := range sums {
		if counts[h] > 0 {
			p.means[h] = sums[h] / float64(counts[h])
			p.seen[h] = true
		}
	}
	if len(all) > 0 {
		p.overall = stat.Mean(all, nil)
	}
	return p
}

// At returns the expected count for an hour of day.
func (p Profile) At(hour int) float64 {
	if hour >= 0 && hour < 24 && p.seen[hour] {
		return p.means[hour]
	}
	return p.overall
}

func (p Profile) Has(hour int) bool {
	return hour >= 0 && hour < 24 && p.seen[hour]
}

func (p Profile) Overall() float64 { return p.overall }
