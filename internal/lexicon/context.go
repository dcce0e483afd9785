package lexicon

import (
	"fmt"

	"github.com/ppiankov/affectgate/internal/textstat"
)

// ContextRule overrides the literal weight of an ambiguous term based on
// words co-occurring in the same text. Boost words win over damp words.
type ContextRule struct {
	Category    string   `yaml:"category"`
	Term        string   `yaml:"term"`
	Base        float64  `yaml:"base"`
	Boost       []string `yaml:"boost"`
	Damp        []string `yaml:"damp"`
	BoostWeight float64  `yaml:"boost_weight"`
	DampWeight  float64  `yaml:"damp_weight"`
}

type contextKey struct {
	category string
	term     string
}

// ContextTable indexes context rules by (category, term).
type ContextTable struct {
	rules map[contextKey]ContextRule
}

// NewContextTable validates and indexes rules.
func NewContextTable(rules []ContextRule) (*ContextTable, error) {
	t := &ContextTable{rules: make(map[contextKey]ContextRule, len(rules))}
	for i, r := range rules {
		r.Term = normalizeTerm(r.Term)
		if r.Category == "" || r.Term == "" {
			return nil, fmt.Errorf("context rule %d: category and term are required", i)
		}
		for _, w := range []float64{r.Base, r.BoostWeight, r.DampWeight} {
			if w < 0 || w > 1 {
				return nil, fmt.Errorf("context rule %s/%s: weight %g outside [0,1]", r.Category, r.Term, w)
			}
		}
		for j := range r.Boost {
			r.Boost[j] = normalizeTerm(r.Boost[j])
		}
		for j := range r.Damp {
			r.Damp[j] = normalizeTerm(r.Damp[j])
		}
		key := contextKey{r.Category, r.Term}
		if _, dup := t.rules[key]; dup {
			return nil, fmt.Errorf("context rule %s/%s: duplicate", r.Category, r.Term)
		}
		t.rules[key] = r
	}
	return t, nil
}

// Len returns the number of rules.
func (t *ContextTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Weight returns the effective weight of term in the lower-cased text.
// Without a rule the literal weight is returned unchanged.
func (t *ContextTable) Weight(category, term, text string, literal float64) float64 {
	if t == nil {
		return literal
	}
	r, ok := t.rules[contextKey{category, term}]
	if !ok {
		return literal
	}
	switch {
	case textstat.ContainsAny(text, r.Boost):
		return r.BoostWeight
	case textstat.ContainsAny(text, r.Damp):
		return r.DampWeight
	default:
		return r.Base
	}
}
