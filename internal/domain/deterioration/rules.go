package deterioration

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Factor names, also used as contribution keys.
const (
	FactorHeartRate        = "heart_rate"
	FactorOxygenSaturation = "oxygen_saturation"
	FactorSystolicBP       = "systolic_bp"
	FactorRespiratoryRate  = "respiratory_rate"
	FactorTemperature      = "temperature"
	FactorConsciousness    = "consciousness"
	FactorAge              = "age"
	FactorWaitingTime      = "waiting_time"
	FactorSymptomCount     = "symptom_count"
	FactorRiskFactors      = "risk_factors"
)

// FactorOrder is the evaluation sequence. Contributions and reasoning entries
// always follow this order regardless of how a rule set lists its factors.
var FactorOrder = []string{
	FactorHeartRate,
	FactorOxygenSaturation,
	FactorSystolicBP,
	FactorRespiratoryRate,
	FactorTemperature,
	FactorConsciousness,
	FactorAge,
	FactorWaitingTime,
	FactorSymptomCount,
	FactorRiskFactors,
}

func knownFactor(name string) bool {
	for _, f := range FactorOrder {
		if f == name {
			return true
		}
	}
	return false
}

// Tier is one row of a factor's threshold table. A numeric tier matches when
// any of its bounds holds; a categorical tier matches when the value is in
// OneOf. "{value}" in Reason is replaced with the observed value. An empty
// Reason scores the tier without adding a reasoning entry.
type Tier struct {
	Points  float64  `yaml:"points" json:"points"`
	Below   *float64 `yaml:"below,omitempty" json:"below,omitempty"`
	Above   *float64 `yaml:"above,omitempty" json:"above,omitempty"`
	AtLeast *float64 `yaml:"at_least,omitempty" json:"at_least,omitempty"`
	OneOf   []string `yaml:"one_of,omitempty" json:"one_of,omitempty"`
	Reason  string   `yaml:"reason,omitempty" json:"reason,omitempty"`
}

func (t Tier) categorical() bool { return len(t.OneOf) > 0 }

func (t Tier) matchNumber(v float64) bool {
	if t.Below != nil && v < *t.Below {
		return true
	}
	if t.Above != nil && v > *t.Above {
		return true
	}
	if t.AtLeast != nil && v >= *t.AtLeast {
		return true
	}
	return false
}

func (t Tier) matchCategory(v string) bool {
	for _, c := range t.OneOf {
		if strings.EqualFold(c, v) {
			return true
		}
	}
	return false
}

func (t Tier) reason(value string) string {
	return strings.ReplaceAll(t.Reason, "{value}", value)
}

// Factor is a named threshold table, most severe tier first.
type Factor struct {
	Name  string `yaml:"name" json:"name"`
	Tiers []Tier `yaml:"tiers" json:"tiers"`
}

// EscalationRule fires when score >= Threshold and the current priority is
// below Target.
type EscalationRule struct {
	Threshold  float64  `yaml:"threshold" json:"threshold"`
	Target     Priority `yaml:"target" json:"target"`
	ETAMinutes int      `yaml:"eta_minutes" json:"eta_minutes"`
	Marker     string   `yaml:"marker,omitempty" json:"marker,omitempty"`
}

// RuleSet is a versioned scoring and escalation configuration.
type RuleSet struct {
	Version      string           `yaml:"version" json:"version"`
	ModelVersion string           `yaml:"model_version" json:"model_version"`
	Scale        []Priority       `yaml:"scale,omitempty" json:"scale,omitempty"`
	Factors      []Factor         `yaml:"factors" json:"factors"`
	Ladder       []EscalationRule `yaml:"ladder" json:"ladder"`
}

func (rs RuleSet) factor(name string) (Factor, bool) {
	for _, f := range rs.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// Validate checks the rule set is internally consistent.
func (rs RuleSet) Validate() error {
	if rs.Version == "" {
		return fmt.Errorf("rule set version is required")
	}
	seen := make(map[string]bool, len(rs.Factors))
	for _, f := range rs.Factors {
		if !knownFactor(f.Name) {
			return fmt.Errorf("rule set %s: unknown factor %q", rs.Version, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("rule set %s: factor %q listed twice", rs.Version, f.Name)
		}
		seen[f.Name] = true
		for i, t := range f.Tiers {
			if t.Points < 0 {
				return fmt.Errorf("rule set %s: %s tier %d has negative points", rs.Version, f.Name, i)
			}
			numeric := t.Below != nil || t.Above != nil || t.AtLeast != nil
			if f.Name == FactorConsciousness {
				if !t.categorical() || numeric {
					return fmt.Errorf("rule set %s: consciousness tier %d must use one_of", rs.Version, i)
				}
				continue
			}
			if t.categorical() || !numeric {
				return fmt.Errorf("rule set %s: %s tier %d needs below, above or at_least", rs.Version, f.Name, i)
			}
		}
	}
	for i, r := range rs.Ladder {
		if r.Target == "" {
			return fmt.Errorf("rule set %s: ladder rule %d has no target", rs.Version, i)
		}
		if r.ETAMinutes < 0 {
			return fmt.Errorf("rule set %s: ladder rule %d has negative eta", rs.Version, i)
		}
	}
	return nil
}

// LoadRuleSet decodes a YAML rule set and validates it.
func LoadRuleSet(r io.Reader) (RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return RuleSet{}, fmt.Errorf("decode rule set: %w", err)
	}
	for i := range rs.Scale {
		rs.Scale[i] = Priority(strings.ToUpper(string(rs.Scale[i])))
	}
	for i := range rs.Ladder {
		rs.Ladder[i].Target = Priority(strings.ToUpper(string(rs.Ladder[i].Target)))
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

func LoadRuleSetFile(path string) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("open rule set: %w", err)
	}
	defer f.Close()
	return LoadRuleSet(f)
}

// WriteYAML encodes the rule set in the same format LoadRuleSet reads.
func (rs RuleSet) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("encode rule set: %w", err)
	}
	return enc.Close()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
