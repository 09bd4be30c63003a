package deterioration

import (
	"fmt"
	"math"
	"time"
)

// Engine scores snapshots against one rule set. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	rules   RuleSet
	scale   Scale
	factors map[string]Factor
	now     func() time.Time
}

type Option func(*Engine)

// WithScale overrides the priority scale declared by the rule set.
func WithScale(s Scale) Option {
	return func(e *Engine) { e.scale = s }
}

// WithClock sets the time source used for escalation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(rs RuleSet, opts ...Option) (*Engine, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		rules:   rs,
		scale:   DefaultScale,
		factors: make(map[string]Factor, len(rs.Factors)),
		now:     time.Now,
	}
	if len(rs.Scale) > 0 {
		s, err := NewScale(rs.Scale...)
		if err != nil {
			return nil, fmt.Errorf("rule set %s: %w", rs.Version, err)
		}
		e.scale = s
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range rs.Ladder {
		if !e.scale.Contains(r.Target) {
			return nil, fmt.Errorf("rule set %s: ladder target %s is not on scale %s", rs.Version, r.Target, e.scale)
		}
	}
	for _, f := range rs.Factors {
		e.factors[f.Name] = f
	}
	return e, nil
}

func (e *Engine) IsReady() bool { return e != nil && e.rules.Version != "" }

func (e *Engine) RuleSet() RuleSet { return e.rules }

func (e *Engine) Scale() Scale { return e.scale }

// Score evaluates every factor in FactorOrder. The total is the capped sum
// of contributions.
func (e *Engine) Score(s Snapshot) Score {
	out := Score{
		Contributions: make(Contributions, 0, len(FactorOrder)),
		Reasoning:     []string{},
	}
	for _, name := range FactorOrder {
		pts, reason := e.evaluate(name, s)
		out.Contributions = append(out.Contributions, Contribution{Factor: name, Points: pts})
		if reason != "" {
			out.Reasoning = append(out.Reasoning, reason)
		}
	}
	out.Total = math.Min(100, math.Max(0, out.Contributions.Sum()))
	return out
}

func (e *Engine) evaluate(name string, s Snapshot) (float64, string) {
	f, ok := e.factors[name]
	if !ok {
		return 0, ""
	}
	if name == FactorConsciousness {
		v := string(s.Consciousness)
		for _, t := range f.Tiers {
			if t.matchCategory(v) {
				return t.Points, t.reason(v)
			}
		}
		return 0, ""
	}
	v := s.value(name)
	for _, t := range f.Tiers {
		if t.matchNumber(v) {
			return t.Points, t.reason(formatValue(v))
		}
	}
	return 0, ""
}

// Predict walks the ladder and returns the first rule whose threshold is met
// and whose target is above the current priority. It never lowers priority.
func (e *Engine) Predict(score float64, current Priority) Escalation {
	cur := e.scale.Normalize(string(current))
	esc := Escalation{From: cur, To: cur}
	for _, r := range e.rules.Ladder {
		if score >= r.Threshold && e.scale.Less(cur, r.Target) {
			esc.To = r.Target
			esc.Fired = true
			esc.ETAMinutes = r.ETAMinutes
			esc.Marker = r.Marker
			return esc
		}
	}
	return esc
}

// Confidence estimates data quality from unavailable readings.
func Confidence(s Snapshot) float64 {
	c := 0.85
	if s.HeartRate == 0 || s.OxygenSaturation == 0 {
		c -= 0.2
	}
	if s.Age == 0 {
		c -= 0.1
	}
	return math.Max(0.5, math.Min(1.0, c))
}

// Assess runs scoring, escalation and confidence for one snapshot.
func (e *Engine) Assess(s Snapshot) *Assessment {
	score := e.Score(s)
	esc := e.Predict(score.Total, Priority(s.CurrentPriority))

	reasoning := score.Reasoning
	if esc.Fired && esc.Marker != "" {
		reasoning = append([]string{esc.Marker}, reasoning...)
	}

	a := &Assessment{
		RiskScore:                round(score.Total, 2),
		DeteriorationProbability: round(score.Total/100, 3),
		Confidence:               round(Confidence(s), 2),
		CurrentPriority:          esc.From,
		PredictedPriority:        esc.To,
		Reasoning:                reasoning,
		Contributions:            score.Contributions,
		ModelVersion:             e.rules.ModelVersion,
		RuleSet:                  e.rules.Version,
	}
	if esc.Fired {
		at := e.now().Add(time.Duration(esc.ETAMinutes) * time.Minute)
		eta := esc.ETAMinutes
		a.PredictedEscalationTime = &at
		a.EscalationETAMinutes = &eta
	}
	return a
}
