package deterioration

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Consciousness is an AVPU level.
type Consciousness string

const (
	Alert        Consciousness = "alert"
	Verbal       Consciousness = "verbal"
	Pain         Consciousness = "pain"
	Unresponsive Consciousness = "unresponsive"
)

var consciousnessRank = map[Consciousness]int{Alert: 0, Verbal: 1, Pain: 2, Unresponsive: 3}

// ParseConsciousness accepts full names or AVPU letters. Anything else is
// treated as alert.
func ParseConsciousness(s string) Consciousness {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbal", "v":
		return Verbal
	case "pain", "p":
		return Pain
	case "unresponsive", "u":
		return Unresponsive
	default:
		return Alert
	}
}

// Rank orders levels alert < verbal < pain < unresponsive.
func (c Consciousness) Rank() int { return consciousnessRank[c] }

// Snapshot is a defaulted view of one set of patient observations. Zero
// heart rate, oxygen saturation or age mean the reading was unavailable.
type Snapshot struct {
	HeartRate        float64
	RespiratoryRate  float64
	SystolicBP       float64
	OxygenSaturation float64
	Temperature      float64
	Consciousness    Consciousness
	Age              float64
	CurrentPriority  string
	WaitingMinutes   float64
	SymptomCount     int
	RiskFactorCount  int
}

// DefaultSnapshot returns a snapshot of normal adult observations.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		HeartRate:        80,
		RespiratoryRate:  16,
		SystolicBP:       120,
		OxygenSaturation: 98,
		Temperature:      37.0,
		Consciousness:    Alert,
		Age:              40,
		CurrentPriority:  string(Green),
	}
}

func (s Snapshot) value(factor string) float64 {
	switch factor {
	case FactorHeartRate:
		return s.HeartRate
	case FactorOxygenSaturation:
		return s.OxygenSaturation
	case FactorSystolicBP:
		return s.SystolicBP
	case FactorRespiratoryRate:
		return s.RespiratoryRate
	case FactorTemperature:
		return s.Temperature
	case FactorAge:
		return s.Age
	case FactorWaitingTime:
		return s.WaitingMinutes
	case FactorSymptomCount:
		return float64(s.SymptomCount)
	case FactorRiskFactors:
		return float64(s.RiskFactorCount)
	}
	return 0
}

// UnmarshalJSON decodes leniently: absent or wrongly typed fields keep their
// defaults instead of failing.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	req, err := DecodeRequest(data)
	if err != nil {
		return err
	}
	*s = req.Snapshot
	return nil
}

// Request is a decoded assessment request: the snapshot plus the identifiers
// needed to route escalation events.
type Request struct {
	Snapshot       Snapshot
	HospitalID     string
	PatientID      string
	ChiefComplaint string
	// SymptomsGiven is set when the caller supplied a symptom list or count.
	SymptomsGiven bool
}

type object map[string]any

// DecodeRequest parses an assessment body. Vital signs are read from a
// nested "vitalSigns" object when present and from the top level otherwise;
// both camelCase and snake_case keys are accepted. Only a body that is not a
// JSON object is an error.
func DecodeRequest(data []byte) (Request, error) {
	var root object
	if err := json.Unmarshal(data, &root); err != nil {
		return Request{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if root == nil {
		root = object{}
	}
	vitals := root
	for _, k := range []string{"vitalSigns", "vital_signs", "vitals"} {
		if nested, ok := root[k].(map[string]any); ok {
			vitals = object(nested)
			break
		}
	}

	s := DefaultSnapshot()
	s.HeartRate = vitals.number(s.HeartRate, "heartRate", "heart_rate", "hr")
	s.RespiratoryRate = vitals.number(s.RespiratoryRate, "respiratoryRate", "respiratory_rate", "rr")
	s.SystolicBP = vitals.number(s.SystolicBP, "systolicBP", "systolicBp", "systolic_bp", "bloodPressure")
	s.OxygenSaturation = vitals.number(s.OxygenSaturation, "oxygenSaturation", "oxygen_saturation", "spo2")
	s.Temperature = vitals.number(s.Temperature, "temperature", "temp")
	if c, ok := vitals.str("consciousness", "consciousnessLevel", "consciousness_level"); ok {
		s.Consciousness = ParseConsciousness(c)
	} else if c, ok := root.str("consciousness", "consciousnessLevel", "consciousness_level"); ok {
		s.Consciousness = ParseConsciousness(c)
	}

	s.Age = root.number(s.Age, "age")
	if p, ok := root.str("currentPriority", "current_priority", "priority"); ok {
		s.CurrentPriority = strings.ToUpper(strings.TrimSpace(p))
	}
	s.WaitingMinutes = root.number(s.WaitingMinutes, "waitingTime", "waiting_time", "waitingTimeMinutes")

	req := Request{}
	if n, ok := root.count("symptomCount", "symptom_count", "symptoms"); ok {
		s.SymptomCount = n
		req.SymptomsGiven = true
	}
	if n, ok := root.count("riskFactorCount", "risk_factor_count", "riskFactors", "risk_factors"); ok {
		s.RiskFactorCount = n
	}

	req.Snapshot = s
	req.HospitalID, _ = root.id("hospitalId", "hospital_id")
	req.PatientID, _ = root.id("patientId", "patient_id")
	req.ChiefComplaint, _ = root.str("chiefComplaint", "chief_complaint")
	return req, nil
}

func (o object) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (o object) number(def float64, keys ...string) float64 {
	v, ok := o.lookup(keys...)
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func (o object) str(keys ...string) (string, bool) {
	v, ok := o.lookup(keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// count reads either a number or the length of a list.
func (o object) count(keys ...string) (int, bool) {
	v, ok := o.lookup(keys...)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case []any:
		return len(t), true
	case float64:
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	}
	return 0, false
}

func (o object) id(keys ...string) (string, bool) {
	v, ok := o.lookup(keys...)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}
