package deterioration

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltIn(t *testing.T) {
	assert.Equal(t, []string{"ml-v1", "triage-v1"}, BuiltInNames())

	for _, name := range BuiltInNames() {
		rs, err := BuiltIn(name)
		require.NoError(t, err)
		assert.Equal(t, name, rs.Version)
		assert.NoError(t, rs.Validate())
	}

	_, err := BuiltIn("v0")
	assert.Error(t, err)
}

func TestBuiltIn_ReturnsCopies(t *testing.T) {
	a, _ := BuiltIn("ml-v1")
	a.Ladder[0].Threshold = 1

	b, _ := BuiltIn("ml-v1")
	assert.Equal(t, 80.0, b.Ladder[0].Threshold)
}

func TestRuleSet_YAMLRoundTrip(t *testing.T) {
	for _, rs := range []RuleSet{MLv1(), TriageV1()} {
		var buf bytes.Buffer
		require.NoError(t, rs.WriteYAML(&buf))

		got, err := LoadRuleSet(&buf)
		require.NoError(t, err)
		assert.Equal(t, rs, got)
	}
}

const strictYAML = `
version: strict-test
model_version: "2.0"
scale: [blue, green, yellow, red]
factors:
  - name: oxygen_saturation
    tiers:
      - points: 40
        below: 88
        reason: "Hypoxia: {value}%"
  - name: consciousness
    tiers:
      - points: 50
        one_of: [pain, unresponsive]
ladder:
  - threshold: 40
    target: red
    eta_minutes: 5
    marker: "CRITICAL"
`

func TestLoadRuleSet(t *testing.T) {
	rs, err := LoadRuleSet(strings.NewReader(strictYAML))
	require.NoError(t, err)

	assert.Equal(t, "strict-test", rs.Version)
	assert.Equal(t, []Priority{Blue, Green, Yellow, Red}, rs.Scale)
	assert.Equal(t, Red, rs.Ladder[0].Target)

	e, err := NewEngine(rs)
	require.NoError(t, err)

	s := DefaultSnapshot()
	s.OxygenSaturation = 85
	a := e.Assess(s)
	assert.Equal(t, 40.0, a.RiskScore)
	assert.Equal(t, Red, a.PredictedPriority)
	assert.Equal(t, []string{"CRITICAL", "Hypoxia: 85%"}, a.Reasoning)
	assert.Equal(t, "2.0", a.ModelVersion)
}

func TestLoadRuleSet_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "version: x\nweights: {}\n", "decode rule set"},
		{"missing version", "factors: []\n", "version is required"},
		{"unknown factor", "version: x\nfactors:\n  - name: pulse\n    tiers: []\n", "unknown factor"},
		{"duplicate factor", "version: x\nfactors:\n  - name: age\n    tiers: []\n  - name: age\n    tiers: []\n", "listed twice"},
		{"numeric consciousness", "version: x\nfactors:\n  - name: consciousness\n    tiers:\n      - points: 5\n        below: 2\n", "must use one_of"},
		{"tier without bound", "version: x\nfactors:\n  - name: age\n    tiers:\n      - points: 5\n", "needs below"},
		{"negative points", "version: x\nfactors:\n  - name: age\n    tiers:\n      - points: -5\n        above: 60\n", "negative points"},
		{"ladder without target", "version: x\nladder:\n  - threshold: 10\n", "no target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRuleSet(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRuleSetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strictYAML), 0o600))

	rs, err := LoadRuleSetFile(path)
	require.NoError(t, err)
	assert.Equal(t, "strict-test", rs.Version)

	_, err = LoadRuleSetFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTier_Match(t *testing.T) {
	tier := Tier{Below: num(40), Above: num(140)}
	assert.True(t, tier.matchNumber(39))
	assert.True(t, tier.matchNumber(141))
	assert.False(t, tier.matchNumber(40))
	assert.False(t, tier.matchNumber(140))

	atLeast := Tier{AtLeast: num(3)}
	assert.True(t, atLeast.matchNumber(3))
	assert.False(t, atLeast.matchNumber(2))

	cat := Tier{OneOf: []string{"pain", "unresponsive"}}
	assert.True(t, cat.matchCategory("Pain"))
	assert.False(t, cat.matchCategory("verbal"))
}
