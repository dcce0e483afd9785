package phases

import (
	"sort"
	"unicode/utf8"
)

// Keyword is an extracted content word and its frequency.
type Keyword struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// German
		"aber", "alle", "alles", "auch", "auf", "aus", "bei", "bin", "bis", "bist", "das", "dass",
		"dem", "den", "der", "des", "die", "dir", "doch", "ein", "eine", "einem", "einen", "einer",
		"er", "es", "für", "hat", "habe", "haben", "ich", "ihr", "ist", "mal", "man", "mein",
		"meine", "mich", "mir", "mit", "nach", "nicht", "noch", "nur", "oder", "sehr", "sich",
		"sie", "sind", "so", "und", "uns", "von", "war", "was", "wenn", "wie", "wir", "zu", "zum",
		"zur", "deine", "dein", "heute", "jetzt", "immer",
		// English
		"the", "and", "for", "are", "but", "not", "you", "your", "with", "have", "has", "had",
		"was", "were", "this", "that", "they", "them", "from", "there", "what", "when", "just",
		"very", "can", "all", "any", "its", "it's", "i'm", "i've", "don't", "into", "about",
		"would", "could", "should", "been", "being", "will", "she", "him", "her", "his", "our",
	} {
		stopwords[w] = struct{}{}
	}
}

// Keywords returns up to n most frequent content words of ws (lower-cased
// tokens), most frequent first, ties in alphabetical order.
func Keywords(ws []string, n int) []Keyword {
	counts := make(map[string]int)
	for _, w := range ws {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		counts[w]++
	}
	out := make([]Keyword, 0, len(counts))
	for t, c := range counts {
		out = append(out, Keyword{Term: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
