package phases

import (
	"crypto/sha256"
	"encoding/hex"
	"math"

	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/pipeline"
	"github.com/ppiankov/affectgate/internal/textstat"
)

func (b *builder) synthesis() pipeline.Phase {
	w := b.d.Weights.Synthesis
	return pipeline.Phase{
		Num:  feature.PhaseSynthesis,
		Name: "synthesis",
		Requires: []string{
			feature.SafetyScanComplete, feature.DangerProximity, feature.CrisisScore,
			feature.AffectStability, feature.Coherence, feature.TokenCount,
		},
		Features: []pipeline.Feature{
			{ID: feature.ContextSupport, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(textstat.Clamp01(float64(len(in.Context.Retrieved)) / w.ContextSaturation))
			}},
			{ID: feature.RiskLevel, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				return float(math.Max(s.Float(feature.DangerProximity), s.Float(feature.CrisisScore)))
			}},
			{ID: feature.SystemReadiness, Requires: []string{feature.RiskLevel, feature.ContextSupport},
				Compute: func(in *pipeline.Input) (feature.Value, error) {
					s := in.Snapshot
					stab := w.ReadinessStability*s.Float(feature.AffectStability) + (1 - w.ReadinessStability)
					return float(textstat.Clamp01(
						(1-s.Float(feature.RiskLevel))*stab + w.ReadinessContext*s.Float(feature.ContextSupport)))
				}},
			{ID: feature.Commitment, Compute: func(in *pipeline.Input) (feature.Value, error) {
				s := in.Snapshot
				length := math.Min(1, s.Float(feature.TokenCount)/w.CommitmentTokens)
				return float(textstat.Clamp01(
					w.CommitmentLength*length + w.CommitmentCoherence*s.Float(feature.Coherence)))
			}},
			{ID: feature.SessionDrift, Requires: []string{feature.RiskLevel}, Compute: func(in *pipeline.Input) (feature.Value, error) {
				prev := in.Context.Previous
				if prev == nil || !prev.Has(feature.RiskLevel) {
					return float(0)
				}
				return float(textstat.Clamp01(math.Abs(in.Snapshot.Float(feature.RiskLevel) - prev.Float(feature.RiskLevel))))
			}},
			{ID: feature.TurnIndex, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(float64(in.Context.TurnIndex))
			}},
			{ID: feature.FinalScore, Requires: []string{feature.RiskLevel, feature.SystemReadiness, feature.SessionDrift},
				Compute: func(in *pipeline.Input) (feature.Value, error) {
					s := in.Snapshot
					return float(textstat.Clamp01(
						w.FinalRisk*s.Float(feature.RiskLevel) +
							w.FinalUnreadiness*(1-s.Float(feature.SystemReadiness)) +
							w.FinalDrift*s.Float(feature.SessionDrift)))
				}},
			{ID: feature.RiskBand, Requires: []string{feature.RiskLevel}, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return feature.Enum(riskBand(in.Snapshot.Float(feature.RiskLevel), w)), nil
			}},
			{ID: feature.SnapshotDigest, Compute: func(in *pipeline.Input) (feature.Value, error) {
				d, err := Digest(in.Snapshot, feature.PhaseSafety)
				if err != nil {
					return feature.Value{}, err
				}
				return feature.Hex(d), nil
			}},
		},
	}
}

func riskBand(risk float64, w SynthesisWeights) string {
	switch {
	case risk >= w.BandCritical:
		return "critical"
	case risk >= w.BandHigh:
		return "high"
	case risk >= w.BandModerate:
		return "moderate"
	default:
		return "low"
	}
}

// Digest returns the first feature.DigestLen hex characters of the SHA-256
// of the canonical encoding of s restricted to phases up to maxPhase.
func Digest(s *feature.Snapshot, maxPhase int) (string, error) {
	sub := feature.NewSnapshot(s.Catalog())
	for _, id := range s.IDs() {
		d, _ := s.Catalog().Lookup(id)
		if d.Phase > maxPhase {
			continue
		}
		v, _ := s.Get(id)
		if err := sub.Set(id, v); err != nil {
			return "", err
		}
	}
	data, err := sub.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:feature.DigestLen], nil
}
