package surge

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const noiseScale = 0.15

// MaxPredictedCount caps a forecast hour so the count stays representable.
const MaxPredictedCount = math.MaxInt32

// Forecaster projects hourly arrivals. It is immutable after construction
// and safe for concurrent use.
type Forecaster struct {
	noise SourceFactory
	loc   *time.Location
}

type ForecasterOption func(*Forecaster)

// WithNoise sets the random source factory for the data path.
func WithNoise(f SourceFactory) ForecasterOption {
	return func(fc *Forecaster) { fc.noise = f }
}

// WithLocation sets the zone hours of day are computed in.
func WithLocation(loc *time.Location) ForecasterOption {
	return func(fc *Forecaster) { fc.loc = loc }
}

func NewForecaster(opts ...ForecasterOption) *Forecaster {
	f := &Forecaster{noise: TimeSeeded(), loc: time.UTC}
	for _, opt := range opts {
		opt(f)
	}
	if f.loc == nil {
		f.loc = time.UTC
	}
	if f.noise == nil {
		f.noise = NoNoise()
	}
	return f
}

func (f *Forecaster) IsReady() bool { return f != nil && f.noise != nil }

func (f *Forecaster) Location() *time.Location { return f.loc }

// Forecast projects hoursAhead points starting one hour after now. Fewer
// than MinSamples samples select the fixed diurnal baseline. A non-positive
// hoursAhead yields an empty forecast.
func (f *Forecaster) Forecast(samples []Sample, hoursAhead int, now time.Time) *Forecast {
	hoursAhead = max(hoursAhead, 0)
	now = now.In(f.loc)
	if len(samples) < MinSamples {
		return f.baseline(hoursAhead, now)
	}

	profile := Aggregate(samples, f.loc)
	src := f.noise()
	points := make([]Point, 0, hoursAhead)
	for i := 1; i <= hoursAhead; i++ {
		at := now.Add(time.Duration(i) * time.Hour)
		base := profile.At(at.Hour())
		predicted := clampCount(base + src.NormFloat64()*noiseScale*base)
		points = append(points, newPoint(at, predicted, 0.8, 1.2))
	}

	mean, threshold := Threshold(samples)
	surge := Detect(points, threshold)
	peak := Peak(points)
	return &Forecast{
		Points:          points,
		SurgeDetected:   surge,
		SurgeThreshold:  threshold,
		CurrentAverage:  round(mean, 2),
		Peak:            peak,
		Recommendations: Recommend(surge, peak, mean),
		Confidence:      dataConfidence,
		ModelVersion:    ModelVersion,
		GeneratedAt:     now,
	}
}

func (f *Forecaster) baseline(hoursAhead int, now time.Time) *Forecast {
	points := make([]Point, 0, hoursAhead)
	for i := 1; i <= hoursAhead; i++ {
		at := now.Add(time.Duration(i) * time.Hour)
		points = append(points, newPoint(at, Diurnal(at.Hour()), 0.7, 1.3))
	}
	peak := Peak(points)
	surge := peak != nil && peak.PredictedCount > baselineThreshold
	return &Forecast{
		Points:          points,
		SurgeDetected:   surge,
		SurgeThreshold:  baselineThreshold,
		CurrentAverage:  baselineAverage,
		Peak:            peak,
		Recommendations: Recommend(surge, peak, baselineAverage),
		Confidence:      baselineConfidence,
		ModelVersion:    ModelVersion,
		Baseline:        true,
		GeneratedAt:     now,
	}
}

func newPoint(at time.Time, predicted int, lower, upper float64) Point {
	return Point{
		Timestamp:       at,
		Hour:            at.Hour(),
		PredictedCount:  predicted,
		ConfidenceLower: round(float64(predicted)*lower, 1),
		ConfidenceUpper: round(float64(predicted)*upper, 1),
	}
}

// clampCount rounds v to a count in [0, MaxPredictedCount].
func clampCount(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Min(MaxPredictedCount, math.Max(0, math.Round(v))))
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
