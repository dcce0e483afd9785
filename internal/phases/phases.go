// Package phases defines the built-in feature phases: raw text statistics
// and lexicon scores, derived affect, safety composites, session synthesis
// and dyadic response analysis.
package phases

import (
	"fmt"

	"github.com/ppiankov/affectgate/internal/adjust"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/lexicon"
	"github.com/ppiankov/affectgate/internal/pipeline"
)

// Deps are the shared, read-only inputs of the built-in phases.
type Deps struct {
	Lexicons *lexicon.Set
	Adjuster *adjust.Adjuster
	Weights  Weights
}

// DefaultDeps returns deps built from the embedded lexicons and default
// adjusters and weights.
func DefaultDeps() (Deps, error) {
	set, err := lexicon.Default()
	if err != nil {
		return Deps{}, err
	}
	return Deps{Lexicons: set, Adjuster: adjust.NewDefault(), Weights: DefaultWeights()}, nil
}

// Build returns phases 1 through 5.
func Build(d Deps) []pipeline.Phase {
	b := &builder{d: d, scorer: d.Lexicons.Scorer(d.Adjuster.Negation())}
	return []pipeline.Phase{b.raw(), b.affect(), b.safety(), b.synthesis(), b.dyadic()}
}

// NewScheduler builds a scheduler over the built-in catalog.
func NewScheduler(d Deps, opts ...pipeline.Option) (*pipeline.Scheduler, error) {
	if d.Lexicons == nil || d.Adjuster == nil {
		return nil, fmt.Errorf("phases: lexicons and adjuster are required")
	}
	return pipeline.New(feature.Builtin(), Build(d), opts...)
}

type builder struct {
	d      Deps
	scorer *lexicon.Scorer
}

// scored pairs a lexicon category with its raw and adjusted identifiers.
type scored struct {
	category string
	raw      string
	adj      string
}

var scoredCategories = []scored{
	{lexicon.CategoryPanic, feature.LexPanic, feature.AdjPanic},
	{lexicon.CategoryDissociation, feature.LexDissociation, feature.AdjDissociation},
	{lexicon.CategoryHazard, feature.LexHazard, feature.AdjHazard},
	{lexicon.CategoryPositive, feature.LexPositive, feature.AdjPositive},
	{lexicon.CategoryNegative, feature.LexNegative, feature.AdjNegative},
	{lexicon.CategoryHopelessness, feature.LexHopelessness, feature.AdjHopelessness},
	{lexicon.CategoryTrauma, feature.LexTrauma, feature.AdjTrauma},
}

// riskCategories are the categories whose terms count as risk content in
// dyadic analysis.
var riskCategories = []string{
	lexicon.CategoryPanic, lexicon.CategoryDissociation, lexicon.CategoryHazard,
	lexicon.CategoryHopelessness, lexicon.CategoryTrauma, lexicon.CategoryCrisis,
}

func float(v float64) (feature.Value, error) { return feature.Float(v), nil }

func boolean(b bool) (feature.Value, error) { return feature.Bool(b), nil }

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
