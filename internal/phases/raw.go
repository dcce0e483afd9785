package phases

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/affectgate/internal/adjust"
	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/lexicon"
	"github.com/ppiankov/affectgate/internal/pipeline"
	"github.com/ppiankov/affectgate/internal/textstat"
)

func words(in *pipeline.Input) []string {
	return in.Memo("words", func() any { return textstat.Words(in.Text) }).([]string)
}

func sentences(in *pipeline.Input) []string {
	return in.Memo("sentences", func() any { return textstat.Sentences(in.Text) }).([]string)
}

func (b *builder) lex(in *pipeline.Input, category string) lexicon.Result {
	return in.Memo("lex:"+category, func() any {
		return b.scorer.Score(in.Text, b.d.Lexicons.Lexicon(category), category)
	}).(lexicon.Result)
}

func (b *builder) adjusted(in *pipeline.Input, category string) float64 {
	raw := b.lex(in, category).Score
	// Situational markers describe how risk content is meant; they do not
	// apply to positive affect.
	if category == lexicon.CategoryPositive {
		v, _ := b.d.Adjuster.AdjustWithout(raw, in.Text, adjust.NameSituational)
		return v
	}
	v, _ := b.d.Adjuster.Adjust(raw, in.Text)
	return v
}

func (b *builder) crisis(in *pipeline.Input) lexicon.Result {
	return in.Memo("crisis", func() any {
		return lexicon.Score(in.Text, b.d.Lexicons.Lexicon(lexicon.CategoryCrisis))
	}).(lexicon.Result)
}

func (b *builder) raw() pipeline.Phase {
	fs := []pipeline.Feature{
		{ID: feature.TokenCount, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(float64(len(words(in))))
		}},
		{ID: feature.UniqueTokenRatio, Compute: func(in *pipeline.Input) (feature.Value, error) {
			ws := words(in)
			if len(ws) == 0 {
				return float(0)
			}
			seen := make(map[string]struct{}, len(ws))
			for _, w := range ws {
				seen[w] = struct{}{}
			}
			return float(float64(len(seen)) / float64(len(ws)))
		}},
		{ID: feature.AvgWordLength, Compute: func(in *pipeline.Input) (feature.Value, error) {
			ws := words(in)
			if len(ws) == 0 {
				return float(0)
			}
			n := 0
			for _, w := range ws {
				n += utf8.RuneCountInString(w)
			}
			return float(float64(n) / float64(len(ws)))
		}},
		{ID: feature.CharEntropy, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(math.Min(textstat.CharEntropy(in.Text), 32))
		}},
		{ID: feature.WordEntropy, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(math.Min(textstat.WordEntropy(in.Text), 32))
		}},
		{ID: feature.ExclamationRatio, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(terminatorRatio(sentences(in), "!"))
		}},
		{ID: feature.QuestionRatio, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(terminatorRatio(sentences(in), "?"))
		}},
		{ID: feature.UppercaseRatio, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(uppercaseRatio(textstat.Tokens(in.Text)))
		}},
		{ID: feature.SentenceCount, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(float64(len(sentences(in))))
		}},
		{ID: feature.Coherence, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(coherence(sentences(in)))
		}},
		{ID: feature.Flow, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(flow(sentences(in)))
		}},
		{ID: feature.LoopScore, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(loopScore(words(in)))
		}},
		{ID: feature.KeywordDensity, Compute: func(in *pipeline.Input) (feature.Value, error) {
			ws := words(in)
			if len(ws) == 0 {
				return float(0)
			}
			n := 0
			for _, k := range Keywords(ws, b.d.Weights.Keywords) {
				n += k.Count
			}
			return float(float64(n) / float64(len(ws)))
		}},
	}

	for _, sc := range scoredCategories {
		fs = append(fs,
			pipeline.Feature{ID: sc.raw, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(b.lex(in, sc.category).Score)
			}},
			pipeline.Feature{ID: sc.adj, Compute: func(in *pipeline.Input) (feature.Value, error) {
				return float(b.adjusted(in, sc.category))
			}},
		)
	}

	fs = append(fs,
		pipeline.Feature{ID: feature.NegationPresent, Compute: func(in *pipeline.Input) (feature.Value, error) {
			for _, sc := range scoredCategories {
				for _, m := range b.lex(in, sc.category).Matches {
					if m.Negated {
						return boolean(true)
					}
				}
			}
			return boolean(false)
		}},
		pipeline.Feature{ID: feature.HypotheticalPresent, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return boolean(b.d.Adjuster.Hypothetical().Present(in.Text))
		}},
		pipeline.Feature{ID: feature.ReportedSpeechPresent, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return boolean(b.d.Adjuster.ReportedSpeech().Present(in.Text))
		}},
		pipeline.Feature{ID: feature.PositiveContext, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return boolean(b.d.Adjuster.Situational().Detect(in.Text) == adjust.SituationPositive)
		}},
		pipeline.Feature{ID: feature.UrgencyContext, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return boolean(b.d.Adjuster.Situational().Detect(in.Text) == adjust.SituationUrgent)
		}},
		pipeline.Feature{ID: feature.CrisisLiteral, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return boolean(len(b.crisis(in).Matches) > 0)
		}},
		pipeline.Feature{ID: feature.CrisisLiteralCount, Compute: func(in *pipeline.Input) (feature.Value, error) {
			return float(float64(len(b.crisis(in).Matches)))
		}},
	)

	return pipeline.Phase{Num: feature.PhaseRaw, Name: "raw", Concurrent: true, Features: fs}
}

func terminatorRatio(sents []string, term string) float64 {
	if len(sents) == 0 {
		return 0
	}
	n := 0
	for _, s := range sents {
		if strings.HasSuffix(s, term) {
			n++
		}
	}
	return float64(n) / float64(len(sents))
}

// uppercaseRatio counts tokens of two or more letters written entirely in
// upper case.
func uppercaseRatio(toks []textstat.Token) float64 {
	if len(toks) == 0 {
		return 0
	}
	n := 0
	for _, t := range toks {
		letters, upper := 0, 0
		for _, r := range t.Text {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters >= 2 && upper == letters {
			n++
		}
	}
	return float64(n) / float64(len(toks))
}

// coherence is the mean Jaccard overlap of adjacent sentences' token sets.
// A single sentence is fully coherent.
func coherence(sents []string) float64 {
	switch len(sents) {
	case 0:
		return 0
	case 1:
		return 1
	}
	var sum float64
	prev := wordSet(textstat.Words(sents[0]))
	for _, s := range sents[1:] {
		cur := wordSet(textstat.Words(s))
		sum += jaccard(prev, cur)
		prev = cur
	}
	return sum / float64(len(sents)-1)
}

// flow is one minus the coefficient of variation of sentence lengths.
func flow(sents []string) float64 {
	switch len(sents) {
	case 0:
		return 0
	case 1:
		return 1
	}
	lens := make([]float64, len(sents))
	var mean float64
	for i, s := range sents {
		lens[i] = float64(textstat.WordCount(s))
		mean += lens[i]
	}
	mean /= float64(len(lens))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, l := range lens {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lens))
	return textstat.Clamp01(1 - math.Sqrt(variance)/mean)
}

// loopScore is the share of word trigrams that repeat an earlier trigram.
func loopScore(ws []string) float64 {
	if len(ws) < 3 {
		return 0
	}
	total := len(ws) - 2
	seen := make(map[string]struct{}, total)
	repeats := 0
	for i := 0; i < total; i++ {
		g := ws[i] + " " + ws[i+1] + " " + ws[i+2]
		if _, ok := seen[g]; ok {
			repeats++
			continue
		}
		seen[g] = struct{}{}
	}
	return float64(repeats) / float64(total)
}

func wordSet(ws []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		m[w] = struct{}{}
	}
	return m
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
