package deterioration

import (
	"fmt"
	"sort"
)

func num(v float64) *float64 { return &v }

const (
	criticalMarker = "⚠️ CRITICAL: Immediate escalation to RED predicted"
	warningMarker  = "⚠️ WARNING: Escalation to YELLOW predicted"
)

// MLv1 is the statistical service rule set.
func MLv1() RuleSet {
	return RuleSet{
		Version:      "ml-v1",
		ModelVersion: "1.0.0",
		Scale:        []Priority{Green, Yellow, Red},
		Factors: []Factor{
			{Name: FactorHeartRate, Tiers: []Tier{
				{Points: 25, Below: num(40), Above: num(140), Reason: "Critical heart rate detected: {value} bpm"},
				{Points: 15, Below: num(50), Above: num(120), Reason: "Abnormal heart rate: {value} bpm"},
				{Points: 8, Above: num(100), Reason: "Elevated heart rate: {value} bpm"},
			}},
			{Name: FactorOxygenSaturation, Tiers: []Tier{
				{Points: 30, Below: num(90), Reason: "Critical oxygen saturation: {value}%"},
				{Points: 20, Below: num(94), Reason: "Low oxygen saturation: {value}%"},
				{Points: 10, Below: num(96), Reason: "Reduced oxygen saturation: {value}%"},
			}},
			{Name: FactorSystolicBP, Tiers: []Tier{
				{Points: 25, Below: num(90), Above: num(200), Reason: "Critical blood pressure: {value} mmHg"},
				{Points: 15, Below: num(100), Above: num(180), Reason: "Abnormal blood pressure: {value} mmHg"},
			}},
			{Name: FactorRespiratoryRate, Tiers: []Tier{
				{Points: 25, Below: num(8), Above: num(30), Reason: "Critical respiratory rate: {value}/min"},
				{Points: 15, Below: num(10), Above: num(24)},
			}},
			{Name: FactorTemperature, Tiers: []Tier{
				{Points: 20, Below: num(35), Above: num(40), Reason: "Critical temperature: {value}°C"},
				{Points: 10, Above: num(38.5), Reason: "High fever: {value}°C"},
			}},
			{Name: FactorConsciousness, Tiers: []Tier{
				{Points: 35, OneOf: []string{string(Pain), string(Unresponsive)}, Reason: "Altered consciousness: {value}"},
				{Points: 15, OneOf: []string{string(Verbal)}},
			}},
			{Name: FactorAge, Tiers: []Tier{
				{Points: 12, Above: num(75), Reason: "High-risk age group: {value} years"},
				{Points: 8, Above: num(65)},
				{Points: 15, Below: num(1), Reason: "Infant - high risk"},
			}},
			{Name: FactorWaitingTime, Tiers: []Tier{
				{Points: 15, Above: num(60), Reason: "Extended wait time: {value} minutes"},
				{Points: 8, Above: num(30)},
			}},
			{Name: FactorSymptomCount, Tiers: []Tier{
				{Points: 10, AtLeast: num(4), Reason: "Multiple symptoms: {value}"},
			}},
			{Name: FactorRiskFactors, Tiers: []Tier{
				{Points: 12, AtLeast: num(3), Reason: "Multiple comorbidities: {value}"},
				{Points: 6, AtLeast: num(1)},
			}},
		},
		Ladder: []EscalationRule{
			{Threshold: 80, Target: Red, ETAMinutes: 8, Marker: criticalMarker},
			{Threshold: 60, Target: Yellow, ETAMinutes: 12, Marker: warningMarker},
			{Threshold: 40, Target: Green, ETAMinutes: 20},
		},
	}
}

// TriageV1 is the gateway rule set. It scores every tier with a reason and
// runs on the four level BLUE scale.
func TriageV1() RuleSet {
	return RuleSet{
		Version:      "triage-v1",
		ModelVersion: "1.0.0-triage",
		Scale:        []Priority{Blue, Green, Yellow, Red},
		Factors: []Factor{
			{Name: FactorHeartRate, Tiers: []Tier{
				{Points: 30, Below: num(40), Above: num(140), Reason: "Critical heart rate: {value} bpm"},
				{Points: 20, Below: num(50), Above: num(120), Reason: "Abnormal heart rate: {value} bpm"},
				{Points: 10, Below: num(60), Above: num(100), Reason: "Elevated heart rate: {value} bpm"},
			}},
			{Name: FactorOxygenSaturation, Tiers: []Tier{
				{Points: 30, Below: num(90), Reason: "Critical oxygen saturation: {value}%"},
				{Points: 20, Below: num(94), Reason: "Low oxygen saturation: {value}%"},
				{Points: 10, Below: num(96), Reason: "Reduced oxygen saturation: {value}%"},
			}},
			{Name: FactorSystolicBP, Tiers: []Tier{
				{Points: 30, Below: num(90), Above: num(200), Reason: "Critical blood pressure: {value} mmHg"},
				{Points: 20, Below: num(100), Above: num(180), Reason: "Abnormal blood pressure: {value} mmHg"},
				{Points: 10, Above: num(140), Reason: "Elevated blood pressure: {value} mmHg"},
			}},
			{Name: FactorRespiratoryRate, Tiers: []Tier{
				{Points: 30, Below: num(8), Above: num(30), Reason: "Critical respiratory rate: {value}/min"},
				{Points: 20, Below: num(10), Above: num(24), Reason: "Abnormal respiratory rate: {value}/min"},
				{Points: 10, Below: num(12), Above: num(20), Reason: "Elevated respiratory rate: {value}/min"},
			}},
			{Name: FactorTemperature, Tiers: []Tier{
				{Points: 25, Below: num(35), Above: num(40), Reason: "Critical temperature: {value}°C"},
				{Points: 15, Below: num(36), Above: num(39), Reason: "Abnormal temperature: {value}°C"},
				{Points: 8, Above: num(38), Reason: "Fever: {value}°C"},
			}},
			{Name: FactorConsciousness, Tiers: []Tier{
				{Points: 40, OneOf: []string{string(Unresponsive)}, Reason: "Patient unresponsive - CRITICAL"},
				{Points: 25, OneOf: []string{string(Pain)}, Reason: "Responds only to pain"},
				{Points: 15, OneOf: []string{string(Verbal)}, Reason: "Responds to verbal stimuli"},
			}},
			{Name: FactorAge, Tiers: []Tier{
				{Points: 15, Below: num(1), Reason: "Infant - high risk"},
				{Points: 10, Below: num(5), Above: num(75), Reason: "Age-related risk: {value} years"},
				{Points: 5, Above: num(65), Reason: "Elderly patient: {value} years"},
			}},
			{Name: FactorWaitingTime, Tiers: []Tier{
				{Points: 15, Above: num(120), Reason: "Extended wait time: {value} minutes"},
				{Points: 8, Above: num(60), Reason: "Prolonged wait time: {value} minutes"},
			}},
			{Name: FactorSymptomCount, Tiers: []Tier{
				{Points: 20, AtLeast: num(3), Reason: "Multiple symptoms: {value}"},
				{Points: 10, AtLeast: num(1), Reason: "Presenting symptoms: {value}"},
			}},
			{Name: FactorRiskFactors, Tiers: []Tier{
				{Points: 15, AtLeast: num(2), Reason: "Multiple risk factors: {value}"},
				{Points: 8, AtLeast: num(1), Reason: "Risk factor present: {value}"},
			}},
		},
		Ladder: []EscalationRule{
			{Threshold: 40, Target: Red, ETAMinutes: 8, Marker: criticalMarker},
			{Threshold: 25, Target: Yellow, ETAMinutes: 12, Marker: warningMarker},
		},
	}
}

var builtIn = map[string]func() RuleSet{
	"ml-v1":     MLv1,
	"triage-v1": TriageV1,
}

// BuiltIn returns a fresh copy of a named built-in rule set.
func BuiltIn(name string) (RuleSet, error) {
	fn, ok := builtIn[name]
	if !ok {
		return RuleSet{}, fmt.Errorf("unknown rule set %q (available: %v)", name, BuiltInNames())
	}
	return fn(), nil
}

func BuiltInNames() []string {
	names := make([]string, 0, len(builtIn))
	for n := range builtIn {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
