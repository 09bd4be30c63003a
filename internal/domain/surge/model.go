package surge

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Recommendation priorities, ordered low < medium < high.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Sample is one historical load observation.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	PatientCount float64   `json:"patient_count"`
}

var sampleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the ISO forms without a zone that
// upstream systems emit. Zone-less values are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sampleLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON accepts patient_count, patientCount or count, and timestamps
// as strings or unix seconds. Zone-less timestamps are read as UTC.
func (s *Sample) UnmarshalJSON(data []byte) error {
	out, err := decodeSample(data, time.UTC)
	if err != nil {
		return err
	}
	*s = out
	return nil
}

func decodeSample(data []byte, loc *time.Location) (Sample, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	var s Sample
	switch ts := raw["timestamp"].(type) {
	case string:
		t, err := ParseTimestamp(ts, loc)
		if err != nil {
			return Sample{}, err
		}
		s.Timestamp = t
	case float64:
		sec, frac := math.Modf(ts)
		s.Timestamp = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	default:
		return Sample{}, fmt.Errorf("sample has no timestamp")
	}
	for _, k := range []string{"patient_count", "patientCount", "count"} {
		if v, ok := raw[k].(float64); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			s.PatientCount = math.Max(0, v)
			break
		}
	}
	return s, nil
}

// DecodeSamples decodes a JSON array of samples, reading zone-less
// timestamps in loc. Entries that cannot be decoded are skipped and counted.
func DecodeSamples(data []byte, loc *time.Location) ([]Sample, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, fmt.Errorf("decode samples: %w", err)
	}
	out := make([]Sample, 0, len(items))
	skipped := 0
	for _, item := range items {
		s, err := decodeSample(item, loc)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, s)
	}
	return out, skipped, nil
}

// Point is one forecast hour.
type Point struct {
	Timestamp       time.Time `json:"timestamp"`
	Hour            int       `json:"hour"`
	PredictedCount  int       `json:"predicted_patient_count"`
	ConfidenceLower float64   `json:"confidence_lower"`
	ConfidenceUpper float64   `json:"confidence_upper"`
}

type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Details  string `json:"details"`
	Icon     string `json:"icon"`
}

// Forecast is the full surge projection for one hospital.
type Forecast struct {
	HospitalID      string           `json:"hospital_id,omitempty"`
	Points          []Point          `json:"hourly_forecast"`
	SurgeDetected   bool             `json:"surge_detected"`
	SurgeThreshold  float64          `json:"surge_threshold"`
	CurrentAverage  float64          `json:"current_average"`
	Peak            *Point           `json:"peak_hour"`
	Recommendations []Recommendation `json:"recommendations"`
	Confidence      float64          `json:"confidence"`
	ModelVersion    string           `json:"model_version"`
	Baseline        bool             `json:"baseline"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
