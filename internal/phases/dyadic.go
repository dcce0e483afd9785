package phases

import (
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/lexicon"
	"github.com/ppiankov/affectgate/internal/pipeline"
	"github.com/ppiankov/affectgate/internal/textstat"
)

func (b *builder) dyadic() pipeline.Phase {
	return pipeline.Phase{
		Num:      feature.PhaseDyadic,
		Name:     "dyadic",
		Paired:   true,
		Requires: []string{feature.AffectValence, feature.DangerProximity, feature.SafetyScanComplete},
		Features: []pipeline.Feature{
			{ID: feature.ResponseOverlap, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(jaccard(wordSet(textstat.Words(in.Context.PromptText)), wordSet(words(in))))
			}},
			{ID: feature.RiskEcho, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(b.riskEcho(in))
			}},
			{ID: feature.AffectShift, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(in.Snapshot.Float(feature.AffectValence) - in.Context.Prompt.Float(feature.AffectValence))
			}},
			{ID: feature.RiskEscalation, Compute: func(in *pipeline.Input) (feature.Value, error) {
				d := in.Snapshot.Float(feature.DangerProximity) - in.Context.Prompt.Float(feature.DangerProximity)
				return float(textstat.Clamp(d, -1, 1))
			}},
		},
	}
}

// riskEcho is the share of the prompt's distinct risk terms that the
// response repeats.
func (b *builder) riskEcho(in *pipeline.Input) float64 {
	promptTerms := make(map[string]struct{})
	for _, c := range riskCategories {
		for _, t := range lexicon.Score(in.Context.PromptText, b.d.Lexicons.Lexicon(c)).Terms {
			promptTerms[t] = struct{}{}
		}
	}
	if len(promptTerms) == 0 {
		return 0
	}
	echoed := make(map[string]struct{})
	for _, c := range riskCategories {
		for _, t := range lexicon.Score(in.Text, b.d.Lexicons.Lexicon(c)).Terms {
			if _, ok := promptTerms[t]; ok {
				echoed[t] = struct{}{}
			}
		}
	}
	return float64(len(echoed)) / float64(len(promptTerms))
}
