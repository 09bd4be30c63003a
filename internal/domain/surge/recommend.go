package surge

import "fmt"

const bedSurgeFactor = 1.5

// Recommend builds the action list for a forecast. Order is fixed: staffing,
// beds (only when the peak is well above average), communication, resources.
// Without a surge a single normal-operations entry is returned.
func Recommend(surge bool, peak *Point, average float64) []Recommendation {
	if !surge || peak == nil {
		return []Recommendation{{
			Type:     "normal",
			Priority: PriorityLow,
			Action:   "Normal operations",
			Details:  "No surge expected - maintain standard staffing",
			Icon:     "check",
		}}
	}

	count := float64(peak.PredictedCount)
	recs := []Recommendation{{
		Type:     "staffing",
		Priority: PriorityHigh,
		Action:   fmt.Sprintf("Schedule additional staff for %s", peak.Timestamp.Format("15:04")),
		Details:  fmt.Sprintf("Expected surge of %d patients", peak.PredictedCount),
		Icon:     "users",
	}}
	if count > average*bedSurgeFactor {
		recs = append(recs, Recommendation{
			Type:     "beds",
			Priority: PriorityHigh,
			Action:   "Prepare additional emergency beds",
			Details:  fmt.Sprintf("Prepare %d extra beds", int((count-average)*0.7)),
			Icon:     "bed",
		})
	}
	return append(recs,
		Recommendation{
			Type:     "communication",
			Priority: PriorityMedium,
			Action:   "Alert neighboring hospitals",
			Details:  "Coordinate potential patient transfers",
			Icon:     "phone",
		},
		Recommendation{
			Type:     "resources",
			Priority: PriorityMedium,
			Action:   "Stock critical supplies",
			Details:  "Ensure adequate medication and equipment",
			Icon:     "package",
		},
	)
}
