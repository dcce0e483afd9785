package adjust

import (
	"strings"

	"github.com/ppiankov/affectgate/internal/textstat"
)

// Detector names.
const (
	NameReportedSpeech = "reported_speech"
	NameHypothetical   = "hypothetical"
	NameSituational    = "situational"
)

// Negation flags a lexicon match when a marker appears within the Window
// words preceding it. It implements lexicon.Negator.
type Negation struct {
	Window  int      `yaml:"window"`
	Factor  float64  `yaml:"factor"`
	Markers []string `yaml:"markers"`
}

// Negated reports whether a marker occurs in the words before byte offset
// start of the lower-cased text. Sentence terminators end the window.
func (n *Negation) Negated(text string, start int) bool {
	if start <= 0 || start > len(text) {
		return false
	}
	prefix := text[:start]
	if i := strings.LastIndexAny(prefix, ".!?\n"); i >= 0 {
		prefix = prefix[i+1:]
	}
	words := textstat.Words(prefix)
	if len(words) > n.Window {
		words = words[len(words)-n.Window:]
	}
	if len(words) == 0 {
		return false
	}
	return textstat.ContainsAny(strings.Join(words, " "), n.Markers)
}

// NegationFactor returns the multiplier for negated matches.
func (n *Negation) NegationFactor() float64 { return n.Factor }

// Present reports whether any negation marker occurs in text.
func (n *Negation) Present(text string) bool {
	return textstat.ContainsAny(strings.ToLower(text), n.Markers)
}

// ReportedSpeech downweights text that quotes or reports someone else.
type ReportedSpeech struct {
	Verbs    []string `yaml:"verbs"`
	Quotes   string   `yaml:"quotes"`
	Strong   float64  `yaml:"strong"`
	Moderate float64  `yaml:"moderate"`
}

func (r *ReportedSpeech) Name() string { return NameReportedSpeech }

// Factor returns Strong when a reporting verb and quotation marks are both
// present, Moderate when only one is, and 1 otherwise.
func (r *ReportedSpeech) Factor(text string) float64 {
	verb, quote := r.signals(text)
	switch {
	case verb && quote:
		return r.Strong
	case verb || quote:
		return r.Moderate
	default:
		return 1
	}
}

// Present reports whether either signal fires.
func (r *ReportedSpeech) Present(text string) bool {
	verb, quote := r.signals(strings.ToLower(text))
	return verb || quote
}

func (r *ReportedSpeech) signals(text string) (verb, quote bool) {
	return textstat.ContainsAny(text, r.Verbs), r.Quotes != "" && strings.ContainsAny(text, r.Quotes)
}

// Hypothetical downweights conditional framing.
type Hypothetical struct {
	Markers []string `yaml:"markers"`
	Scale   float64  `yaml:"factor"`
}

func (h *Hypothetical) Name() string { return NameHypothetical }

func (h *Hypothetical) Factor(text string) float64 {
	if textstat.ContainsAny(text, h.Markers) {
		return h.Scale
	}
	return 1
}

// Present reports whether a hypothetical marker occurs in text.
func (h *Hypothetical) Present(text string) bool {
	return textstat.ContainsAny(strings.ToLower(text), h.Markers)
}

// Situation is the outcome of situational marker detection.
type Situation int

const (
	SituationNeutral Situation = iota
	SituationPositive
	SituationUrgent
)

// Situational reduces scores in gratitude or resolved contexts and amplifies
// them under urgency. Urgency wins when both are present.
type Situational struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
	Reduce   float64  `yaml:"reduce"`
	Amplify  float64  `yaml:"amplify"`
}

func (s *Situational) Name() string { return NameSituational }

func (s *Situational) Factor(text string) float64 {
	switch s.Detect(text) {
	case SituationUrgent:
		return s.Amplify
	case SituationPositive:
		return s.Reduce
	default:
		return 1
	}
}

// Detect classifies text.
func (s *Situational) Detect(text string) Situation {
	text = strings.ToLower(text)
	if textstat.ContainsAny(text, s.Negative) {
		return SituationUrgent
	}
	if textstat.ContainsAny(text, s.Positive) {
		return SituationPositive
	}
	return SituationNeutral
}
