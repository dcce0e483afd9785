package phases

import (
	"fmt"
	"sort"
)

// AffectWeights tune phase 2.
type AffectWeights struct {
	ValenceHopelessness float64 `yaml:"valence_hopelessness"`
	ArousalPanic        float64 `yaml:"arousal_panic"`
	ArousalNegative     float64 `yaml:"arousal_negative"`
	ArousalExclamation  float64 `yaml:"arousal_exclamation"`
	ArousalUppercase    float64 `yaml:"arousal_uppercase"`
	StabilityCoherence  float64 `yaml:"stability_coherence"`
	StabilityFlow       float64 `yaml:"stability_flow"`
	StabilityLoop       float64 `yaml:"stability_loop"`
	RuminationBase      float64 `yaml:"rumination_base"`
	LabelValence        float64 `yaml:"label_valence"`
	LabelArousal        float64 `yaml:"label_arousal"`
	LabelStability      float64 `yaml:"label_stability"`
}

// SafetyWeights tune the phase 3 composites.
type SafetyWeights struct {
	PanicLexicon            float64 `yaml:"panic_lexicon"`
	PanicArousal            float64 `yaml:"panic_arousal"`
	PanicUrgency            float64 `yaml:"panic_urgency"`
	DissociationLexicon     float64 `yaml:"dissociation_lexicon"`
	DissociationInstability float64 `yaml:"dissociation_instability"`
	TraumaLexicon           float64 `yaml:"trauma_lexicon"`
	TraumaRumination        float64 `yaml:"trauma_rumination"`
	HopelessnessLexicon     float64 `yaml:"hopelessness_lexicon"`
	HopelessnessValence     float64 `yaml:"hopelessness_valence"`
	HopelessnessRumination  float64 `yaml:"hopelessness_rumination"`
	HazardLexicon           float64 `yaml:"hazard_lexicon"`
	HazardUrgency           float64 `yaml:"hazard_urgency"`
	CrisisHopelessness      float64 `yaml:"crisis_hopelessness"`
	CrisisPanic             float64 `yaml:"crisis_panic"`
	CrisisHazard            float64 `yaml:"crisis_hazard"`
	CrisisDissociation      float64 `yaml:"crisis_dissociation"`
	CrisisTrauma            float64 `yaml:"crisis_trauma"`
	DangerCrisis            float64 `yaml:"danger_crisis"`
	DangerHazard            float64 `yaml:"danger_hazard"`
	DangerHopelessness      float64 `yaml:"danger_hopelessness"`
}

// SynthesisWeights tune phase 4.
type SynthesisWeights struct {
	ContextSaturation   float64 `yaml:"context_saturation"`
	CommitmentTokens    float64 `yaml:"commitment_tokens"`
	CommitmentLength    float64 `yaml:"commitment_length"`
	CommitmentCoherence float64 `yaml:"commitment_coherence"`
	ReadinessStability  float64 `yaml:"readiness_stability"`
	ReadinessContext    float64 `yaml:"readiness_context"`
	FinalRisk           float64 `yaml:"final_risk"`
	FinalUnreadiness    float64 `yaml:"final_unreadiness"`
	FinalDrift          float64 `yaml:"final_drift"`
	BandModerate        float64 `yaml:"band_moderate"`
	BandHigh            float64 `yaml:"band_high"`
	BandCritical        float64 `yaml:"band_critical"`
}

// Weights holds every tunable constant of the built-in phases.
type Weights struct {
	Keywords  int              `yaml:"keywords"`
	Affect    AffectWeights    `yaml:"affect"`
	Safety    SafetyWeights    `yaml:"safety"`
	Synthesis SynthesisWeights `yaml:"synthesis"`
}

// DefaultWeights returns the shipped weights.
func DefaultWeights() Weights {
	return Weights{
		Keywords: 5,
		Affect: AffectWeights{
			ValenceHopelessness: 0.5,
			ArousalPanic:        0.5,
			ArousalNegative:     0.2,
			ArousalExclamation:  0.2,
			ArousalUppercase:    0.1,
			StabilityCoherence:  0.5,
			StabilityFlow:       0.5,
			StabilityLoop:       0.5,
			RuminationBase:      0.5,
			LabelValence:        0.2,
			LabelArousal:        0.5,
			LabelStability:      0.5,
		},
		Safety: SafetyWeights{
			PanicLexicon:            0.6,
			PanicArousal:            0.3,
			PanicUrgency:            0.1,
			DissociationLexicon:     0.8,
			DissociationInstability: 0.2,
			TraumaLexicon:           0.7,
			TraumaRumination:        0.3,
			HopelessnessLexicon:     0.6,
			HopelessnessValence:     0.25,
			HopelessnessRumination:  0.15,
			HazardLexicon:           0.8,
			HazardUrgency:           0.2,
			CrisisHopelessness:      0.35,
			CrisisPanic:             0.25,
			CrisisHazard:            0.2,
			CrisisDissociation:      0.1,
			CrisisTrauma:            0.1,
			DangerCrisis:            0.4,
			DangerHazard:            0.35,
			DangerHopelessness:      0.25,
		},
		Synthesis: SynthesisWeights{
			ContextSaturation:   5,
			CommitmentTokens:    50,
			CommitmentLength:    0.6,
			CommitmentCoherence: 0.4,
			ReadinessStability:  0.5,
			ReadinessContext:    0.1,
			FinalRisk:           0.6,
			FinalUnreadiness:    0.2,
			FinalDrift:          0.2,
			BandModerate:        0.25,
			BandHigh:            0.5,
			BandCritical:        0.75,
		},
	}
}

// Validate reports every out-of-range weight.
func (w Weights) Validate() []error {
	var errs []error
	nonNeg := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("weights.%s: must be non-negative, got %g", name, v))
		}
	}
	if w.Keywords < 1 {
		errs = append(errs, fmt.Errorf("weights.keywords: must be at least 1, got %d", w.Keywords))
	}
	a, s, y := w.Affect, w.Safety, w.Synthesis
	vals := map[string]float64{
		"affect.valence_hopelessness":     a.ValenceHopelessness,
		"affect.arousal_panic":            a.ArousalPanic,
		"affect.arousal_negative":         a.ArousalNegative,
		"affect.arousal_exclamation":      a.ArousalExclamation,
		"affect.arousal_uppercase":        a.ArousalUppercase,
		"affect.stability_coherence":      a.StabilityCoherence,
		"affect.stability_flow":           a.StabilityFlow,
		"affect.stability_loop":           a.StabilityLoop,
		"affect.rumination_base":          a.RuminationBase,
		"affect.label_valence":            a.LabelValence,
		"affect.label_arousal":            a.LabelArousal,
		"affect.label_stability":          a.LabelStability,
		"safety.panic_lexicon":            s.PanicLexicon,
		"safety.panic_arousal":            s.PanicArousal,
		"safety.panic_urgency":            s.PanicUrgency,
		"safety.dissociation_lexicon":     s.DissociationLexicon,
		"safety.dissociation_instability": s.DissociationInstability,
		"safety.trauma_lexicon":           s.TraumaLexicon,
		"safety.trauma_rumination":        s.TraumaRumination,
		"safety.hopelessness_lexicon":     s.HopelessnessLexicon,
		"safety.hopelessness_valence":     s.HopelessnessValence,
		"safety.hopelessness_rumination":  s.HopelessnessRumination,
		"safety.hazard_lexicon":           s.HazardLexicon,
		"safety.hazard_urgency":           s.HazardUrgency,
		"safety.crisis_hopelessness":      s.CrisisHopelessness,
		"safety.crisis_panic":             s.CrisisPanic,
		"safety.crisis_hazard":            s.CrisisHazard,
		"safety.crisis_dissociation":      s.CrisisDissociation,
		"safety.crisis_trauma":            s.CrisisTrauma,
		"safety.danger_crisis":            s.DangerCrisis,
		"safety.danger_hazard":            s.DangerHazard,
		"safety.danger_hopelessness":      s.DangerHopelessness,
		"synthesis.commitment_length":     y.CommitmentLength,
		"synthesis.commitment_coherence":  y.CommitmentCoherence,
		"synthesis.readiness_stability":   y.ReadinessStability,
		"synthesis.readiness_context":     y.ReadinessContext,
		"synthesis.final_risk":            y.FinalRisk,
		"synthesis.final_unreadiness":     y.FinalUnreadiness,
		"synthesis.final_drift":           y.FinalDrift,
	}
	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		nonNeg(name, vals[name])
	}
	if y.ContextSaturation <= 0 {
		errs = append(errs, fmt.Errorf("weights.synthesis.context_saturation: must be positive"))
	}
	if y.CommitmentTokens <= 0 {
		errs = append(errs, fmt.Errorf("weights.synthesis.commitment_tokens: must be positive"))
	}
	if !(0 < y.BandModerate && y.BandModerate < y.BandHigh && y.BandHigh < y.BandCritical && y.BandCritical <= 1) {
		errs = append(errs, fmt.Errorf("weights.synthesis: bands must satisfy 0 < moderate < high < critical <= 1"))
	}
	return errs
}
