package lexicon

import (
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/affectgate/internal/textstat"
)

// Match is one lexicon hit. Start and End are byte offsets into the
// lower-cased text.
type Match struct {
	Term       string  `json:"term"`
	Weight     float64 `json:"weight"`
	BaseWeight float64 `json:"base_weight"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Lexicon    string  `json:"lexicon"`
	Category   string  `json:"category"`
	Negated    bool    `json:"negated,omitempty"`
}

// Result is the outcome of scoring one text against one lexicon.
type Result struct {
	Score   float64  `json:"score"`
	Terms   []string `json:"terms"`
	Matches []Match  `json:"matches"`
}

// Negator decides whether the term starting at byte offset start of the
// lower-cased text is negated.
type Negator interface {
	Negated(text string, start int) bool
	NegationFactor() float64
}

// Scorer scores text against lexicons. The zero value scores with literal
// weights and no negation handling.
type Scorer struct {
	Context *ContextTable
	Negator Negator
}

// Score scores text against lx with literal weights.
func Score(text string, lx *Lexicon) Result {
	var s Scorer
	return s.Score(text, lx, "")
}

// Score scores text against lx. When category is non-empty, context-gated
// weights for that category replace literal weights. Empty text or an empty
// lexicon yields a zero result.
func (s *Scorer) Score(text string, lx *Lexicon, category string) Result {
	if strings.TrimSpace(text) == "" || lx.Len() == 0 {
		return Result{}
	}
	lower := strings.ToLower(text)
	consumed := make([]bool, len(lower))

	var matches []Match
	for _, ct := range lx.matchers() {
		for _, loc := range ct.re.FindAllStringIndex(lower, -1) {
			start, end := loc[0], loc[1]
			if !textstat.IsBoundary(lower, start, end) {
				continue
			}
			if overlaps(consumed, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				consumed[i] = true
			}

			weight := ct.weight
			if category != "" && s.Context != nil {
				weight = s.Context.Weight(category, ct.term, lower, weight)
			}
			m := Match{
				Term:       ct.term,
				BaseWeight: ct.weight,
				Start:      start,
				End:        end,
				Lexicon:    lx.Name,
				Category:   lx.Category,
			}
			if s.Negator != nil && s.Negator.Negated(lower, start) {
				m.Negated = true
				weight *= s.Negator.NegationFactor()
			}
			m.Weight = weight
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return Result{}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	var sum float64
	terms := make([]string, len(matches))
	for i, m := range matches {
		sum += m.Weight
		terms[i] = m.Term
	}
	wc := textstat.WordCount(lower)
	score := sum / (1 + math.Log(float64(wc)+1))

	return Result{
		Score:   textstat.Clamp01(score),
		Terms:   terms,
		Matches: matches,
	}
}

func overlaps(consumed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if consumed[i] {
			return true
		}
	}
	return false
}
