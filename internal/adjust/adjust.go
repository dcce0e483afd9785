// Package adjust scales raw lexicon scores by text-level context: negation,
// reported speech, hypothetical framing and situational markers.
package adjust

import (
	"fmt"
	"strings"

	"github.com/ppiankov/affectgate/internal/textstat"
)

// Detector returns a multiplicative factor for a lower-cased text. A factor
// of 1 means the detector did not fire.
type Detector interface {
	Name() string
	Factor(text string) float64
}

// Applied records one detector that changed a score.
type Applied struct {
	Detector string  `json:"detector"`
	Factor   float64 `json:"factor"`
}

// Adjust multiplies raw by each detector's factor in order and clamps the
// result to [0,1]. Detectors that return 1 are not recorded.
func Adjust(raw float64, text string, detectors ...Detector) (float64, []Applied) {
	lower := strings.ToLower(text)
	score := raw
	var applied []Applied
	for _, d := range detectors {
		f := d.Factor(lower)
		if f == 1 {
			continue
		}
		score *= f
		applied = append(applied, Applied{Detector: d.Name(), Factor: f})
	}
	return textstat.Clamp01(score), applied
}

// Config holds every detector's factors and marker lists.
type Config struct {
	Negation       Negation       `yaml:"negation"`
	ReportedSpeech ReportedSpeech `yaml:"reported_speech"`
	Hypothetical   Hypothetical   `yaml:"hypothetical"`
	Situational    Situational    `yaml:"situational"`
}

// Validate checks factor ranges and marker lists.
func (c Config) Validate() []error {
	var errs []error
	factor := func(name string, v, lo, hi float64) {
		if v < lo || v > hi {
			errs = append(errs, fmt.Errorf("adjust.%s: %g outside [%g,%g]", name, v, lo, hi))
		}
	}
	factor("negation.factor", c.Negation.Factor, 0, 1)
	if c.Negation.Window < 1 {
		errs = append(errs, fmt.Errorf("adjust.negation.window: must be at least 1, got %d", c.Negation.Window))
	}
	if len(c.Negation.Markers) == 0 {
		errs = append(errs, fmt.Errorf("adjust.negation.markers: empty"))
	}
	factor("reported_speech.strong", c.ReportedSpeech.Strong, 0, 1)
	factor("reported_speech.moderate", c.ReportedSpeech.Moderate, 0, 1)
	factor("hypothetical.factor", c.Hypothetical.Scale, 0, 1)
	factor("situational.reduce", c.Situational.Reduce, 0, 1)
	factor("situational.amplify", c.Situational.Amplify, 1, 10)
	return errs
}

// Adjuster applies the configured detectors in the fixed order reported
// speech, hypothetical, situational. Negation is applied per match during
// lexicon scoring via Negation().
type Adjuster struct {
	cfg       Config
	detectors []Detector
}

// New builds an adjuster from cfg. Marker lists are normalized.
func New(cfg Config) *Adjuster {
	cfg.Negation.Markers = normalize(cfg.Negation.Markers)
	cfg.ReportedSpeech.Verbs = normalize(cfg.ReportedSpeech.Verbs)
	cfg.Hypothetical.Markers = normalize(cfg.Hypothetical.Markers)
	cfg.Situational.Positive = normalize(cfg.Situational.Positive)
	cfg.Situational.Negative = normalize(cfg.Situational.Negative)
	a := &Adjuster{cfg: cfg}
	a.detectors = []Detector{&a.cfg.ReportedSpeech, &a.cfg.Hypothetical, &a.cfg.Situational}
	return a
}

// NewDefault returns an adjuster with DefaultConfig.
func NewDefault() *Adjuster {
	return New(DefaultConfig())
}

// Adjust applies every detector to raw.
func (a *Adjuster) Adjust(raw float64, text string) (float64, []Applied) {
	return Adjust(raw, text, a.detectors...)
}

// AdjustWithout applies every detector except the named ones.
func (a *Adjuster) AdjustWithout(raw float64, text string, skip ...string) (float64, []Applied) {
	ds := make([]Detector, 0, len(a.detectors))
	for _, d := range a.detectors {
		if !contains(skip, d.Name()) {
			ds = append(ds, d)
		}
	}
	return Adjust(raw, text, ds...)
}

// Negation returns the per-match negation detector.
func (a *Adjuster) Negation() *Negation { return &a.cfg.Negation }

// ReportedSpeech returns the reported speech detector.
func (a *Adjuster) ReportedSpeech() *ReportedSpeech { return &a.cfg.ReportedSpeech }

// Hypothetical returns the hypothetical framing detector.
func (a *Adjuster) Hypothetical() *Hypothetical { return &a.cfg.Hypothetical }

// Situational returns the situational marker detector.
func (a *Adjuster) Situational() *Situational { return &a.cfg.Situational }

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
