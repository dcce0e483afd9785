package override

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppiankov/affectgate/internal/feature"
)

func safetySnapshot(t *testing.T, vals map[string]feature.Value) *feature.Snapshot {
	t.Helper()
	s := feature.NewSnapshot(feature.Builtin())
	for _, d := range feature.Builtin().Phase(feature.PhaseSafety) {
		v, ok := vals[d.ID]
		if !ok {
			v = d.Default
		}
		require.NoError(t, s.Set(d.ID, v))
	}
	for id, v := range vals {
		if !s.Has(id) {
			require.NoError(t, s.Set(id, v))
		}
	}
	return s
}

func defaultPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(feature.Builtin(), DefaultRules())
	require.NoError(t, err)
	return p
}

func TestPanicRaisesDangerProximity(t *testing.T) {
	s := safetySnapshot(t, map[string]feature.Value{
		feature.PanicComposite:  feature.Float(0.75),
		feature.DangerProximity: feature.Float(0.2),
	})

	out, applied, err := defaultPolicy(t).Apply(s)
	require.NoError(t, err)
	require.InDelta(t, 0.65, out.Float(feature.DangerProximity), 1e-9)
	require.InDelta(t, 0.2, s.Float(feature.DangerProximity), 1e-9, "input must not change")
	require.Len(t, applied, 1)
	require.Equal(t, "panic_danger", applied[0].Rule)
	require.True(t, applied[0].Raised)
}

func TestOverrideNeverLowers(t *testing.T) {
	s := safetySnapshot(t, map[string]feature.Value{
		feature.PanicComposite:  feature.Float(0.9),
		feature.DangerProximity: feature.Float(0.8),
	})

	out, applied, err := defaultPolicy(t).Apply(s)
	require.NoError(t, err)
	require.InDelta(t, 0.8, out.Float(feature.DangerProximity), 1e-9)
	require.Len(t, applied, 1)
	require.False(t, applied[0].Raised)
}

func TestMaximumFloorWins(t *testing.T) {
	s := safetySnapshot(t, map[string]feature.Value{
		feature.CrisisLiteral:         feature.Bool(true),
		feature.PanicComposite:        feature.Float(0.9),
		feature.HopelessnessComposite: feature.Float(0.7),
		feature.HazardComposite:       feature.Float(0.5),
	})

	out, applied, err := defaultPolicy(t).Apply(s)
	require.NoError(t, err)
	require.InDelta(t, 0.7, out.Float(feature.DangerProximity), 1e-9)

	var raised []string
	for _, a := range applied {
		if a.Raised {
			raised = append(raised, a.Rule)
		}
	}
	require.ElementsMatch(t, []string{"hopelessness_with_means", "crisis_literal_score"}, raised)
	// Reported in priority order.
	require.Equal(t, CrisisLiteralRule, applied[0].Rule)
}

func TestCrisisLiteralFloorIndependentOfComposites(t *testing.T) {
	s := safetySnapshot(t, map[string]feature.Value{
		feature.CrisisLiteral: feature.Bool(true),
	})

	out, _, err := defaultPolicy(t).Apply(s)
	require.NoError(t, err)
	require.InDelta(t, CrisisLiteralFloor, out.Float(feature.DangerProximity), 1e-9)
}

func TestOverrideMonotonicForEveryRuleSubset(t *testing.T) {
	rules := DefaultRules()
	s := safetySnapshot(t, map[string]feature.Value{
		feature.CrisisLiteral:         feature.Bool(true),
		feature.PanicComposite:        feature.Float(0.95),
		feature.HopelessnessComposite: feature.Float(0.65),
		feature.HazardComposite:       feature.Float(0.6),
		feature.DissociationComposite: feature.Float(0.8),
		feature.UrgencyContext:        feature.Bool(true),
		feature.DangerProximity:       feature.Float(0.3),
		feature.CrisisScore:           feature.Float(0.1),
	})

	for mask := 0; mask < 1<<len(rules); mask++ {
		var subset []Rule
		for i, r := range rules {
			if mask&(1<<i) != 0 {
				subset = append(subset, r)
			}
		}
		p, err := NewPolicy(feature.Builtin(), subset)
		require.NoError(t, err)
		out, _, err := p.Apply(s)
		require.NoError(t, err)
		for _, d := range feature.Builtin().Phase(feature.PhaseSafety) {
			if d.Kind != feature.KindFloat {
				continue
			}
			if out.Float(d.ID) < s.Float(d.ID) {
				t.Fatalf("mask %b lowered %s: %v -> %v", mask, d.ID, s.Float(d.ID), out.Float(d.ID))
			}
		}
	}
}

func TestNewPolicyValidation(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"empty id", Rule{When: "crisis_literal", Target: feature.DangerProximity, Floor: 0.5}},
		{"unknown target", Rule{ID: "x", When: "crisis_literal", Target: "nope", Floor: 0.5}},
		{"non-safety target", Rule{ID: "x", When: "crisis_literal", Target: feature.FinalScore, Floor: 0.5}},
		{"bool target", Rule{ID: "x", When: "crisis_literal", Target: feature.SafetyScanComplete, Floor: 0.5}},
		{"floor too high", Rule{ID: "x", When: "crisis_literal", Target: feature.DangerProximity, Floor: 1.2}},
		{"bad condition", Rule{ID: "x", When: "crisis_literl", Target: feature.DangerProximity, Floor: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPolicy(feature.Builtin(), []Rule{tt.rule}); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	dup := []Rule{
		{ID: "a", When: "crisis_literal", Target: feature.DangerProximity, Floor: 0.5},
		{ID: "a", When: "crisis_literal", Target: feature.CrisisScore, Floor: 0.5},
	}
	if _, err := NewPolicy(feature.Builtin(), dup); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
