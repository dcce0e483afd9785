// Package textstat holds the tokenization and text statistics shared by
// lexicon scoring, context detection and the raw feature phase.
package textstat

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a word with its byte span in the source text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokens splits text into runs of letters and digits. Apostrophes inside a
// word ("don't") are kept.
func Tokens(text string) []Token {
	var out []Token
	start := -1
	for i, r := range text {
		if isWordRune(r) || (start >= 0 && r == '\'' && nextIsLetter(text, i)) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, Token{Text: text[start:i], Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, Token{Text: text[start:], Start: start, End: len(text)})
	}
	return out
}

// Words returns the lower-cased tokens of text.
func Words(text string) []string {
	toks := Tokens(text)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = strings.ToLower(t.Text)
	}
	return out
}

// WordCount returns the number of tokens in text.
func WordCount(text string) int {
	return len(Tokens(text))
}

// Sentences splits text on terminal punctuation and newlines. Each sentence
// keeps its terminator so callers can inspect it.
func Sentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return out
}

// IsBoundary reports whether the byte span [start,end) of text is delimited
// by non-word runes (or the text edges) on both sides.
func IsBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// IndexPhrase returns the byte offset of the first boundary-delimited
// occurrence of phrase in text, or -1. Both are compared as given; callers
// lower-case beforehand.
func IndexPhrase(text, phrase string) int {
	if phrase == "" {
		return -1
	}
	from := 0
	for from <= len(text) {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return -1
		}
		at := from + i
		if IsBoundary(text, at, at+len(phrase)) {
			return at
		}
		_, size := utf8.DecodeRuneInString(text[at:])
		from = at + size
	}
	return -1
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
func ContainsPhrase(text, phrase string) bool {
	return IndexPhrase(text, phrase) >= 0
}

// ContainsAny reports whether any of the phrases occurs in text.
func ContainsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return true
		}
	}
	return false
}

// Entropy returns the Shannon entropy in bits of the given counts. The
// sum runs over sorted counts so equal inputs give bit-identical results.
func Entropy(counts map[string]int) float64 {
	total := 0
	sorted := make([]int, 0, len(counts))
	for _, c := range counts {
		total += c
		sorted = append(sorted, c)
	}
	if total == 0 {
		return 0
	}
	sort.Ints(sorted)
	var h float64
	for _, c := range sorted {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// CharEntropy returns the rune-level Shannon entropy of text, ignoring
// whitespace.
func CharEntropy(text string) float64 {
	counts := make(map[string]int)
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			continue
		}
		counts[string(r)]++
	}
	return Entropy(counts)
}

// WordEntropy returns the token-level Shannon entropy of text.
func WordEntropy(text string) float64 {
	counts := make(map[string]int)
	for _, w := range Words(text) {
		counts[w]++
	}
	return Entropy(counts)
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func nextIsLetter(text string, i int) bool {
	if i+1 >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i+1:])
	return unicode.IsLetter(r)
}
