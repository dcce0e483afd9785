package phases

import (
	"math"

	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/pipeline"
	"github.com/ppiankov/affectgate/internal/textstat"
)

func (b *builder) safety() pipeline.Phase {
	w := b.d.Weights.Safety
	composites := []string{
		feature.PanicComposite, feature.DissociationComposite, feature.TraumaLoad,
		feature.HopelessnessComposite, feature.HazardComposite,
	}
	return pipeline.Phase{
		Num:  feature.PhaseSafety,
		Name: "safety",
		Requires: []string{
			feature.AdjPanic, feature.AdjDissociation, feature.AdjHazard,
			feature.AdjHopelessness, feature.AdjTrauma,
			feature.UrgencyContext, feature.CrisisLiteral,
			feature.AffectValence, feature.AffectArousal, feature.AffectStability, feature.Rumination,
		},
		Features: []pipeline.Feature{
			{ID: feature.PanicComposite, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				lex := s.Float(feature.AdjPanic)
				return float(textstat.Clamp01(
					w.PanicLexicon*lex +
						w.PanicArousal*s.Float(feature.AffectArousal) +
						w.PanicUrgency*b2f(s.Bool(feature.UrgencyContext))*presence(lex)))
			}},
			{ID: feature.DissociationComposite, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				lex := s.Float(feature.AdjDissociation)
				return float(textstat.Clamp01(
					w.DissociationLexicon*lex +
						w.DissociationInstability*(1-s.Float(feature.AffectStability))*presence(lex)))
			}},
			{ID: feature.TraumaLoad, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				return float(textstat.Clamp01(
					w.TraumaLexicon*s.Float(feature.AdjTrauma) +
						w.TraumaRumination*s.Float(feature.Rumination)))
			}},
			{ID: feature.HopelessnessComposite, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				return float(textstat.Clamp01(
					w.HopelessnessLexicon*s.Float(feature.AdjHopelessness) +
						w.HopelessnessValence*math.Max(0, -s.Float(feature.AffectValence)) +
						w.HopelessnessRumination*s.Float(feature.Rumination)))
			}},
			{ID: feature.HazardComposite, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				lex := s.Float(feature.AdjHazard)
				return float(textstat.Clamp01(
					w.HazardLexicon*lex +
						w.HazardUrgency*b2f(s.Bool(feature.UrgencyContext))*presence(lex)))
			}},
			{ID: feature.CrisisScore, Requires: composites, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				return float(textstat.Clamp01(
					w.CrisisHopelessness*s.Float(feature.HopelessnessComposite) +
						w.CrisisPanic*s.Float(feature.PanicComposite) +
						w.CrisisHazard*s.Float(feature.HazardComposite) +
						w.CrisisDissociation*s.Float(feature.DissociationComposite) +
						w.CrisisTrauma*s.Float(feature.TraumaLoad)))
			}},
			{ID: feature.DangerProximity, Requires: []string{feature.CrisisScore, feature.HazardComposite, feature.HopelessnessComposite},
				Compute: func(in *pipeline.Input) (feature.Value, error) {
					s := in.Snapshot
					return float(textstat.Clamp01(
						w.DangerCrisis*s.Float(feature.CrisisScore) +
							w.DangerHazard*s.Float(feature.HazardComposite) +
							w.DangerHopelessness*s.Float(feature.HopelessnessComposite)))
				}},
			{ID: feature.SafetyScanComplete, Requires: []string{feature.DangerProximity}, Compute: func(*pipeline.Input) (feature.Value, error) {
				return boolean(true)
			}},
		},
	}
}

// presence gates context terms so that urgency or instability alone never
// creates a composite.
func presence(lex float64) float64 {
	if lex > 0 {
		return 1
	}
	return 0
}
