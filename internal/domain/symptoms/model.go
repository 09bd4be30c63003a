package symptoms

// Severity levels, ordered mild < moderate < severe < critical.
const (
	Mild     = "mild"
	Moderate = "moderate"
	Severe   = "severe"
	Critical = "critical"
)

var severityRank = map[string]int{Mild: 0, Moderate: 1, Severe: 2, Critical: 3}

type Symptom struct {
	Symptom    string  `json:"symptom"`
	Severity   string  `json:"severity"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type Condition struct {
	Condition  string  `json:"condition"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type Suggestions struct {
	AdditionalSymptomsToCheck []string `json:"additional_symptoms_to_check"`
	RecommendedTests          []string `json:"recommended_tests"`
	RiskFactorsToAssess       []string `json:"risk_factors_to_assess"`
}

type Extraction struct {
	Symptoms           []Symptom   `json:"extracted_symptoms"`
	Conditions         []Condition `json:"extracted_conditions"`
	PredictedSpecialty string      `json:"predicted_specialty"`
	PredictedSeverity  string      `json:"predicted_severity"`
	Confidence         float64     `json:"confidence"`
	Language           string      `json:"language_detected"`
	Suggestions        Suggestions `json:"suggestions"`
	RawText            string      `json:"raw_text"`
}
