package lexicon

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreEmptyInputs(t *testing.T) {
	lx := MustNew("t", CategoryPanic, map[string]float64{"angst": 0.6})

	if r := Score("", lx); r.Score != 0 || len(r.Matches) != 0 || len(r.Terms) != 0 {
		t.Fatalf("empty text: got %+v", r)
	}
	if r := Score("   ", lx); r.Score != 0 {
		t.Fatalf("blank text: got %v", r.Score)
	}
	empty := MustNew("e", CategoryPanic, nil)
	if r := Score("ich habe angst", empty); r.Score != 0 {
		t.Fatalf("empty lexicon: got %v", r.Score)
	}
	if r := Score("ich habe angst", nil); r.Score != 0 {
		t.Fatalf("nil lexicon: got %v", r.Score)
	}
}

func TestScoreLengthDamping(t *testing.T) {
	lx := MustNew("t", CategoryPanic, map[string]float64{"angst": 0.6})

	r := Score("Ich habe ANGST", lx)
	want := 0.6 / (1 + math.Log(4))
	if math.Abs(r.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", r.Score, want)
	}
	if len(r.Terms) != 1 || r.Terms[0] != "angst" {
		t.Fatalf("terms = %v", r.Terms)
	}
}

func TestScoreClampedToOne(t *testing.T) {
	lx := MustNew("t", CategoryPanic, map[string]float64{"panik": 1.0})
	r := Score("panik panik panik panik panik", lx)
	if r.Score != 1 {
		t.Fatalf("expected clamp to 1, got %v", r.Score)
	}
}

func TestScoreOverlapGuardKeepsLongest(t *testing.T) {
	lx := MustNew("t", CategoryPanic, map[string]float64{
		"panic":        0.9,
		"panic attack": 1.0,
		"attack":       0.5,
	})

	r := Score("I had a panic attack, then another attack", lx)
	require.Len(t, r.Matches, 2)
	require.Equal(t, "panic attack", r.Matches[0].Term)
	require.Equal(t, "attack", r.Matches[1].Term)
	assertNoOverlap(t, r.Matches)
}

func TestScoreWordBoundaries(t *testing.T) {
	lx := MustNew("t", CategoryPanic, map[string]float64{"angst": 0.6})
	if r := Score("angstfrei und mutig", lx); r.Score != 0 {
		t.Fatalf("embedded term must not match, got %+v", r.Matches)
	}
	if r := Score("die ängste", MustNew("u", CategoryPanic, map[string]float64{"ängste": 0.5})); len(r.Matches) != 1 {
		t.Fatalf("umlaut term must match, got %+v", r.Matches)
	}
}

func TestScorePhraseToleratesWhitespace(t *testing.T) {
	lx := MustNew("t", CategoryHopelessness, map[string]float64{"keinen ausweg": 0.9})
	r := Score("ich sehe keinen\n  ausweg", lx)
	require.Len(t, r.Matches, 1)
}

type prefixNegator struct{}

func (prefixNegator) Negated(text string, start int) bool {
	return strings.HasSuffix(text[:start], "nicht ") || strings.HasSuffix(text[:start], "not ")
}

func (prefixNegator) NegationFactor() float64 { return 0.2 }

func TestNegationReducesContribution(t *testing.T) {
	lx := MustNew("t", CategoryPanic, map[string]float64{"panisch": 0.8})
	s := &Scorer{Negator: prefixNegator{}}

	plain := s.Score("ich bin panisch heute", lx, "")
	negated := s.Score("ich bin nicht panisch heute", lx, "")

	require.Len(t, negated.Matches, 1)
	require.True(t, negated.Matches[0].Negated)
	require.InDelta(t, 0.16, negated.Matches[0].Weight, 1e-9)
	require.Less(t, negated.Matches[0].Weight, plain.Matches[0].Weight)
	require.Less(t, negated.Score, plain.Score)
}

func TestContextRuleBoostWinsOverDamp(t *testing.T) {
	ct, err := NewContextTable([]ContextRule{{
		Category:    CategoryPanic,
		Term:        "Hilfe",
		Base:        0.5,
		Boost:       []string{"sofort"},
		Damp:        []string{"danke"},
		BoostWeight: 0.9,
		DampWeight:  0.1,
	}})
	require.NoError(t, err)
	lx := MustNew("t", CategoryPanic, map[string]float64{"hilfe": 0.5})
	s := &Scorer{Context: ct}

	tests := []struct {
		text string
		want float64
	}{
		{"danke für die hilfe", 0.1},
		{"ich brauche sofort hilfe", 0.9},
		{"danke, aber ich brauche sofort hilfe", 0.9},
		{"ich brauche hilfe", 0.5},
	}
	for _, tt := range tests {
		r := s.Score(tt.text, lx, CategoryPanic)
		require.Len(t, r.Matches, 1, tt.text)
		require.InDelta(t, tt.want, r.Matches[0].Weight, 1e-9, tt.text)
		require.InDelta(t, 0.5, r.Matches[0].BaseWeight, 1e-9, tt.text)
	}

	// Without a category the literal weight applies.
	r := s.Score("danke für die hilfe", lx, "")
	require.InDelta(t, 0.5, r.Matches[0].Weight, 1e-9)
}

func TestNewRejectsBadWeights(t *testing.T) {
	if _, err := New("t", CategoryPanic, map[string]float64{"x": 1.5}); err == nil {
		t.Fatal("expected error for weight > 1")
	}
	if _, err := New("t", CategoryPanic, map[string]float64{"x": -0.1}); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, err := New("t", CategoryPanic, map[string]float64{"  ": 0.1}); err == nil {
		t.Fatal("expected error for empty term")
	}
}

func TestDefaultSetHasAllRequiredCategories(t *testing.T) {
	set, err := Default()
	require.NoError(t, err)
	for _, c := range RequiredCategories {
		if set.Lexicon(c).Len() == 0 {
			t.Errorf("category %s empty", c)
		}
	}
	require.Positive(t, set.Context.Len())
}

func TestDefaultContextExample(t *testing.T) {
	set, err := Default()
	require.NoError(t, err)
	s := set.Scorer(nil)

	calm := s.Score("Vielen Dank für deine Hilfe", set.Lexicon(CategoryPanic), CategoryPanic)
	urgent := s.Score("Ich brauche SOFORT Hilfe!", set.Lexicon(CategoryPanic), CategoryPanic)
	require.Less(t, calm.Score, urgent.Score)
}

func TestLoadRejectsMissingCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yaml")
	data := `lexicons:
  - name: only_panic
    category: panic
    terms:
      panik: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := Load([]string{path})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required category")
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("lexicons:\n")
	for _, c := range RequiredCategories {
		b.WriteString("  - name: " + c + "_a\n    category: " + c + "\n    terms:\n      alpha: 0.4\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(b.String()), 0o600))
	extra := `lexicons:
  - name: panic_b
    category: panic
    terms:
      alpha: 0.7
      beta: 0.2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(extra), 0o600))

	set, err := Load([]string{dir})
	require.NoError(t, err)
	lx := set.Lexicon(CategoryPanic)
	require.Equal(t, 2, lx.Len())
	w, ok := lx.Weight("ALPHA")
	require.True(t, ok)
	require.InDelta(t, 0.7, w, 1e-9)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lexicons: [\n"), 0o600))
	if _, err := Load([]string{path}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load([]string{filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func assertNoOverlap(t *testing.T, matches []Match) {
	t.Helper()
	for i := 1; i < len(matches); i++ {
		if matches[i].Start < matches[i-1].End {
			t.Fatalf("matches overlap: %+v and %+v", matches[i-1], matches[i])
		}
	}
}
