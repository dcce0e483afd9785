package lexicon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Categories used by the built-in feature phases.
const (
	CategoryPanic        = "panic"
	CategoryDissociation = "dissociation"
	CategoryHazard       = "hazard"
	CategoryPositive     = "positive"
	CategoryNegative     = "negative"
	CategoryHopelessness = "hopelessness"
	CategoryTrauma       = "trauma"
	CategoryCrisis       = "crisis"
)

// RequiredCategories must each hold at least one term. A missing or empty
// safety lexicon is a configuration error, never a silent zero.
var RequiredCategories = []string{
	CategoryPanic, CategoryDissociation, CategoryHazard, CategoryPositive,
	CategoryNegative, CategoryHopelessness, CategoryTrauma, CategoryCrisis,
}

// Lexicon is a named mapping of term to weight in [0,1].
// Terms are case-insensitive and matched on word boundaries.
type Lexicon struct {
	Name     string
	Category string
	terms    map[string]float64

	once     sync.Once
	compiled []compiledTerm
}

type compiledTerm struct {
	term   string
	weight float64
	runes  int
	re     *regexp.Regexp
}

// New builds a lexicon, lower-casing terms and validating weights.
func New(name, category string, terms map[string]float64) (*Lexicon, error) {
	lx := &Lexicon{
		Name:     name,
		Category: category,
		terms:    make(map[string]float64, len(terms)),
	}
	for term, w := range terms {
		norm := normalizeTerm(term)
		if norm == "" {
			return nil, fmt.Errorf("lexicon %s: empty term", name)
		}
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("lexicon %s: term %q weight %g outside [0,1]", name, term, w)
		}
		if prev, ok := lx.terms[norm]; ok && prev > w {
			continue
		}
		lx.terms[norm] = w
	}
	return lx, nil
}

// MustNew is New for static tables; it panics on invalid input.
func MustNew(name, category string, terms map[string]float64) *Lexicon {
	lx, err := New(name, category, terms)
	if err != nil {
		panic(err)
	}
	return lx
}

// Len returns the number of terms.
func (lx *Lexicon) Len() int {
	if lx == nil {
		return 0
	}
	return len(lx.terms)
}

// Weight returns the literal weight of term.
func (lx *Lexicon) Weight(term string) (float64, bool) {
	w, ok := lx.terms[normalizeTerm(term)]
	return w, ok
}

// Terms returns the terms sorted alphabetically.
func (lx *Lexicon) Terms() []string {
	out := make([]string, 0, len(lx.terms))
	for t := range lx.terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// matchers compiles the terms on first use. The result is read-only.
// Longer terms come first so the overlap guard keeps the longest match.
func (lx *Lexicon) matchers() []compiledTerm {
	lx.once.Do(func() {
		out := make([]compiledTerm, 0, len(lx.terms))
		for term, w := range lx.terms {
			words := strings.Fields(term)
			for i, word := range words {
				words[i] = regexp.QuoteMeta(word)
			}
			out = append(out, compiledTerm{
				term:   term,
				weight: w,
				runes:  utf8.RuneCountInString(term),
				re:     regexp.MustCompile(strings.Join(words, `\s+`)),
			})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].runes != out[j].runes {
				return out[i].runes > out[j].runes
			}
			return out[i].term < out[j].term
		})
		lx.compiled = out
	})
	return lx.compiled
}

// merge folds other's terms into lx, keeping the higher weight.
// Only valid before the first Score call.
func (lx *Lexicon) merge(other *Lexicon) {
	for t, w := range other.terms {
		if prev, ok := lx.terms[t]; !ok || w > prev {
			lx.terms[t] = w
		}
	}
}

func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}
