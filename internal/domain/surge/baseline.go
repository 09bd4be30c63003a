package surge

// Baseline path constants used when history is too short.
const (
	MinSamples         = 10
	baselineThreshold  = 20
	baselineAverage    = 15
	baselineConfidence = 0.60
	dataConfidence     = 0.75
	ModelVersion       = "1.0.0"
)

// diurnal is the expected ED arrivals per hour of day: quiet overnight,
// rising through the morning and peaking in the late afternoon.
var diurnal = [24]int{
	5, 3, 2, 2, 3, 5,
	8, 12, 15, 18, 20, 22,
	20, 18, 19, 21, 23, 25,
	22, 18, 15, 12, 10, 7,
}

// Diurnal returns the baseline expected count for an hour of day.
func Diurnal(hour int) int {
	if hour < 0 || hour > 23 {
		return baselineAverage
	}
	return diurnal[hour]
}
