package deterioration

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Contribution is the points one factor added to the risk score.
type Contribution struct {
	Factor string
	Points float64
}

// Contributions holds one entry per factor in evaluation order. It encodes
// as a JSON object whose keys keep that order.
type Contributions []Contribution

func (c Contributions) Get(factor string) (float64, bool) {
	for _, e := range c {
		if e.Factor == factor {
			return e.Points, true
		}
	}
	return 0, false
}

// Sum is the uncapped total.
func (c Contributions) Sum() float64 {
	var total float64
	for _, e := range c {
		total += e.Points
	}
	return total
}

func (c Contributions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Factor)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.Points)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores entries in FactorOrder; unknown keys are dropped.
func (c *Contributions) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Contributions, 0, len(m))
	for _, f := range FactorOrder {
		if v, ok := m[f]; ok {
			out = append(out, Contribution{Factor: f, Points: v})
		}
	}
	*c = out
	return nil
}

// Score is the output of the risk scoring step.
type Score struct {
	Total         float64
	Contributions Contributions
	Reasoning     []string
}

// Escalation is the output of the escalation predictor. When Fired is false
// To equals From.
type Escalation struct {
	From       Priority
	To         Priority
	Fired      bool
	ETAMinutes int
	Marker     string
}

// Assessment is the full deterioration result returned to callers.
type Assessment struct {
	RiskScore                float64       `json:"risk_score"`
	DeteriorationProbability float64       `json:"deterioration_probability"`
	PredictedEscalationTime  *time.Time    `json:"predicted_escalation_time,omitempty"`
	EscalationETAMinutes     *int          `json:"escalation_eta_minutes,omitempty"`
	Confidence               float64       `json:"confidence"`
	CurrentPriority          Priority      `json:"current_priority"`
	PredictedPriority        Priority      `json:"predicted_priority"`
	Reasoning                []string      `json:"ai_reasoning"`
	Contributions            Contributions `json:"shap_values"`
	ModelVersion             string        `json:"model_version"`
	RuleSet                  string        `json:"rule_set"`
}

// Escalated reports whether a priority change was predicted.
func (a *Assessment) Escalated() bool {
	return a.PredictedPriority != a.CurrentPriority
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
