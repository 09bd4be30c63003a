package deterioration

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, rs RuleSet, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	e, err := NewEngine(rs, opts...)
	require.NoError(t, err)
	return e
}

func criticalSnapshot() Snapshot {
	s := DefaultSnapshot()
	s.HeartRate = 150
	s.OxygenSaturation = 85
	s.Consciousness = Unresponsive
	s.CurrentPriority = "GREEN"
	return s
}

func TestAssess_CriticalScenario(t *testing.T) {
	for _, rs := range []RuleSet{MLv1(), TriageV1()} {
		t.Run(rs.Version, func(t *testing.T) {
			a := newTestEngine(t, rs).Assess(criticalSnapshot())

			assert.GreaterOrEqual(t, a.RiskScore, 80.0)
			assert.Equal(t, Red, a.PredictedPriority)
			require.NotEmpty(t, a.Reasoning)
			assert.Equal(t, criticalMarker, a.Reasoning[0])
			require.NotNil(t, a.EscalationETAMinutes)
			assert.Equal(t, 8, *a.EscalationETAMinutes)
			require.NotNil(t, a.PredictedEscalationTime)
			assert.Equal(t, fixedNow.Add(8*time.Minute), *a.PredictedEscalationTime)
		})
	}
}

func TestAssess_CriticalScenarioReasoningOrder(t *testing.T) {
	a := newTestEngine(t, MLv1()).Assess(criticalSnapshot())

	assert.Equal(t, 90.0, a.RiskScore)
	assert.Equal(t, []string{
		criticalMarker,
		"Critical heart rate detected: 150 bpm",
		"Critical oxygen saturation: 85%",
		"Altered consciousness: unresponsive",
	}, a.Reasoning)
}

func TestAssess_DefaultsScenario(t *testing.T) {
	for _, rs := range []RuleSet{MLv1(), TriageV1()} {
		t.Run(rs.Version, func(t *testing.T) {
			a := newTestEngine(t, rs).Assess(DefaultSnapshot())

			assert.Equal(t, 0.0, a.RiskScore)
			assert.Equal(t, 0.0, a.DeteriorationProbability)
			assert.Equal(t, Green, a.PredictedPriority)
			assert.False(t, a.Escalated())
			assert.Nil(t, a.PredictedEscalationTime)
			assert.Nil(t, a.EscalationETAMinutes)
			assert.Equal(t, 0.85, a.Confidence)
			assert.Empty(t, a.Reasoning)
		})
	}
}

func TestAssess_WarningEscalation(t *testing.T) {
	s := DefaultSnapshot()
	s.HeartRate = 150
	s.OxygenSaturation = 92
	s.Age = 80
	s.RiskFactorCount = 3

	a := newTestEngine(t, MLv1()).Assess(s)

	assert.Equal(t, 69.0, a.RiskScore)
	assert.Equal(t, Yellow, a.PredictedPriority)
	assert.Equal(t, []string{
		warningMarker,
		"Critical heart rate detected: 150 bpm",
		"Low oxygen saturation: 92%",
		"High-risk age group: 80 years",
		"Multiple comorbidities: 3",
	}, a.Reasoning)
	assert.Equal(t, 12, *a.EscalationETAMinutes)
}

func TestAssess_NeverLowersPriority(t *testing.T) {
	s := criticalSnapshot()
	s.CurrentPriority = "RED"

	a := newTestEngine(t, MLv1()).Assess(s)

	assert.Equal(t, Red, a.PredictedPriority)
	assert.False(t, a.Escalated())
	assert.NotContains(t, a.Reasoning, criticalMarker)
	assert.Nil(t, a.EscalationETAMinutes)
}

func TestAssess_YellowPatientSkipsWarning(t *testing.T) {
	s := DefaultSnapshot()
	s.HeartRate = 150
	s.OxygenSaturation = 92
	s.Age = 80
	s.RiskFactorCount = 3
	s.CurrentPriority = "yellow"

	a := newTestEngine(t, MLv1()).Assess(s)

	assert.Equal(t, Yellow, a.CurrentPriority)
	assert.Equal(t, Yellow, a.PredictedPriority)
	assert.NotContains(t, a.Reasoning, warningMarker)
}

func TestAssess_FourLevelScale(t *testing.T) {
	e := newTestEngine(t, MLv1(), WithScale(MustScale(Blue, Green, Yellow, Red)))

	s := DefaultSnapshot()
	s.CurrentPriority = "BLUE"
	s.HeartRate = 150
	s.Temperature = 41
	a := e.Assess(s)

	assert.Equal(t, 45.0, a.RiskScore)
	assert.Equal(t, Blue, a.CurrentPriority)
	assert.Equal(t, Green, a.PredictedPriority)
	require.NotNil(t, a.EscalationETAMinutes)
	assert.Equal(t, 20, *a.EscalationETAMinutes)
	assert.Equal(t, "Critical heart rate detected: 150 bpm", a.Reasoning[0])
}

func TestAssess_UnknownPriorityUsesScaleDefault(t *testing.T) {
	s := DefaultSnapshot()
	s.CurrentPriority = "PURPLE"

	a := newTestEngine(t, TriageV1()).Assess(s)

	assert.Equal(t, Green, a.CurrentPriority)
	assert.Equal(t, Green, a.PredictedPriority)
}

func TestScore_CapsAtHundred(t *testing.T) {
	s := Snapshot{
		HeartRate:        20,
		OxygenSaturation: 70,
		SystolicBP:       60,
		RespiratoryRate:  40,
		Temperature:      42,
		Consciousness:    Unresponsive,
		Age:              0.5,
		WaitingMinutes:   200,
		SymptomCount:     6,
		RiskFactorCount:  4,
	}
	score := newTestEngine(t, MLv1()).Score(s)

	assert.Equal(t, 100.0, score.Total)
	assert.Greater(t, score.Contributions.Sum(), 100.0)
}

func TestScore_SilentTierScoresWithoutReason(t *testing.T) {
	s := DefaultSnapshot()
	s.RespiratoryRate = 26

	score := newTestEngine(t, MLv1()).Score(s)

	pts, ok := score.Contributions.Get(FactorRespiratoryRate)
	require.True(t, ok)
	assert.Equal(t, 15.0, pts)
	assert.Equal(t, 15.0, score.Total)
	assert.Empty(t, score.Reasoning)
}

func TestScore_DecimalValueInReason(t *testing.T) {
	s := DefaultSnapshot()
	s.Temperature = 38.7

	score := newTestEngine(t, MLv1()).Score(s)

	assert.Equal(t, []string{"High fever: 38.7°C"}, score.Reasoning)
}

func TestScore_ContributionKeysFixed(t *testing.T) {
	score := newTestEngine(t, TriageV1()).Score(DefaultSnapshot())

	require.Len(t, score.Contributions, len(FactorOrder))
	for i, c := range score.Contributions {
		assert.Equal(t, FactorOrder[i], c.Factor)
		assert.Equal(t, 0.0, c.Points)
	}
}

func TestScore_PartialRuleSetStillReportsEveryFactor(t *testing.T) {
	rs := RuleSet{
		Version: "hr-only",
		Factors: []Factor{{Name: FactorHeartRate, Tiers: []Tier{{Points: 50, Above: num(100)}}}},
	}
	s := DefaultSnapshot()
	s.HeartRate = 130

	score := newTestEngine(t, rs).Score(s)

	require.Len(t, score.Contributions, len(FactorOrder))
	assert.Equal(t, 50.0, score.Total)
}

func TestAssess_Properties(t *testing.T) {
	engines := []*Engine{newTestEngine(t, MLv1()), newTestEngine(t, TriageV1())}
	levels := []string{"", "BLUE", "GREEN", "YELLOW", "RED", "unknown"}
	avpu := []Consciousness{Alert, Verbal, Pain, Unresponsive}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		s := Snapshot{
			HeartRate:        float64(rng.IntN(200)),
			RespiratoryRate:  float64(rng.IntN(45)),
			SystolicBP:       float64(rng.IntN(240)),
			OxygenSaturation: float64(rng.IntN(101)),
			Temperature:      33 + rng.Float64()*9,
			Consciousness:    avpu[rng.IntN(len(avpu))],
			Age:              float64(rng.IntN(100)),
			CurrentPriority:  levels[rng.IntN(len(levels))],
			WaitingMinutes:   float64(rng.IntN(240)),
			SymptomCount:     rng.IntN(7),
			RiskFactorCount:  rng.IntN(5),
		}
		for _, e := range engines {
			a := e.Assess(s)
			scale := e.Scale()

			assert.GreaterOrEqual(t, a.RiskScore, 0.0)
			assert.LessOrEqual(t, a.RiskScore, 100.0)
			assert.InDelta(t, a.RiskScore/100, a.DeteriorationProbability, 1e-9)
			assert.GreaterOrEqual(t, a.Confidence, 0.5)
			assert.LessOrEqual(t, a.Confidence, 1.0)
			assert.False(t, scale.Less(a.PredictedPriority, a.CurrentPriority))
			assert.Len(t, a.Contributions, len(FactorOrder))
			assert.GreaterOrEqual(t, a.Contributions.Sum(), a.RiskScore)

			markerFirst := len(a.Reasoning) > 0 &&
				(a.Reasoning[0] == criticalMarker || a.Reasoning[0] == warningMarker)
			if a.Escalated() && a.PredictedPriority != Green {
				assert.True(t, markerFirst)
			}
			if !a.Escalated() {
				assert.False(t, markerFirst)
			}
		}
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name      string
		heartRate float64
		spo2      float64
		age       float64
		want      float64
	}{
		{"complete", 80, 98, 40, 0.85},
		{"no heart rate", 0, 98, 40, 0.65},
		{"no oxygen saturation", 80, 0, 40, 0.65},
		{"no heart rate or oxygen", 0, 0, 40, 0.65},
		{"no age", 80, 98, 0, 0.75},
		{"nothing", 0, 0, 0, 0.55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSnapshot()
			s.HeartRate = tt.heartRate
			s.OxygenSaturation = tt.spo2
			s.Age = tt.age
			assert.InDelta(t, tt.want, Confidence(s), 1e-9)
		})
	}
}

func TestNewEngine_LadderTargetOffScale(t *testing.T) {
	_, err := NewEngine(MLv1(), WithScale(MustScale(Green, Red)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YELLOW")
}

func TestNewEngine_InvalidRuleSet(t *testing.T) {
	_, err := NewEngine(RuleSet{})
	assert.Error(t, err)
}

func TestEngine_IsReady(t *testing.T) {
	var nilEngine *Engine
	assert.False(t, nilEngine.IsReady())
	assert.True(t, newTestEngine(t, MLv1()).IsReady())
}

func TestAssessment_JSONKeepsFactorOrder(t *testing.T) {
	a := newTestEngine(t, MLv1()).Assess(criticalSnapshot())

	data, err := json.Marshal(a)
	require.NoError(t, err)
	out := string(data)

	last := -1
	for _, f := range FactorOrder {
		idx := strings.Index(out, `"`+f+`":`)
		require.Greater(t, idx, last, "factor %s out of order", f)
		last = idx
	}
	assert.Contains(t, out, `"predicted_escalation_time"`)
	assert.Contains(t, out, `"ai_reasoning"`)

	var back Assessment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, a.Contributions, back.Contributions)
}

func TestAssessment_JSONOmitsEscalationTimeWhenNone(t *testing.T) {
	data, err := json.Marshal(newTestEngine(t, MLv1()).Assess(DefaultSnapshot()))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "predicted_escalation_time")
}
