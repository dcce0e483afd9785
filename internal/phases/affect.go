package phases

import (
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/pipeline"
	"github.com/ppiankov/affectgate/internal/textstat"
)

func (b *builder) affect() pipeline.Phase {
	w := b.d.Weights.Affect
	return pipeline.Phase{
		Num:  feature.PhaseAffect,
		Name: "affect",
		Requires: []string{
			feature.AdjPositive, feature.AdjNegative, feature.AdjPanic, feature.AdjHopelessness,
			feature.ExclamationRatio, feature.UppercaseRatio,
			feature.Coherence, feature.Flow, feature.LoopScore,
		},
		Features: []pipeline.Feature{
			{ID: feature.AffectValence, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				v := s.Float(feature.AdjPositive) - s.Float(feature.AdjNegative) -
					w.ValenceHopelessness*s.Float(feature.AdjHopelessness)
				return float(textstat.Clamp(v, -1, 1))
			}},
			{ID: feature.AffectArousal, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				return float(textstat.Clamp01(
					w.ArousalPanic*s.Float(feature.AdjPanic) +
						w.ArousalNegative*s.Float(feature.AdjNegative) +
						w.ArousalExclamation*s.Float(feature.ExclamationRatio) +
						w.ArousalUppercase*s.Float(feature.UppercaseRatio)))
			}},
			{ID: feature.AffectStability, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				return float(textstat.Clamp01(
					w.StabilityCoherence*s.Float(feature.Coherence) +
						w.StabilityFlow*s.Float(feature.Flow) -
						w.StabilityLoop*s.Float(feature.LoopScore)))
			}},
			{ID: feature.Rumination, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				neg := s.Float(feature.AdjNegative) + s.Float(feature.AdjHopelessness)
				return float(textstat.Clamp01(s.Float(feature.LoopScore) * (w.RuminationBase + neg)))
			}},
			{ID: feature.ValenceDelta, Requires: []string{feature.AffectValence}, Compute: func(in *pipeline.Input) (feature.Value, error) {
				prev := in.Context.Previous
				if prev == nil || !prev.Has(feature.AffectValence) {
					return float(0)
				}
				return float(in.Snapshot.Float(feature.AffectValence) - prev.Float(feature.AffectValence))
			}},
			{ID: feature.AffectLabel, Requires: []string{feature.AffectValence, feature.AffectArousal, feature.AffectStability},
				Compute: func(in *pipeline.Input) (feature.Value, error) {
					s := in.Snapshot
					return feature.Enum(affectLabel(
						s.Float(feature.AffectValence),
						s.Float(feature.AffectArousal),
						s.Float(feature.AffectStability),
						w,
					)), nil
				}},
		},
	}
}

func affectLabel(valence, arousal, stability float64, w AffectWeights) string {
	switch {
	case arousal >= w.LabelArousal && valence < 0:
		return "distressed"
	case arousal >= w.LabelArousal:
		return "agitated"
	case valence > w.LabelValence:
		return "positive"
	case valence < -w.LabelValence:
		return "distressed"
	case stability >= w.LabelStability:
		return "calm"
	default:
		return "flat"
	}
}
