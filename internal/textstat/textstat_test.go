package textstat

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWordsHandlesUmlautsAndApostrophes(t *testing.T) {
	got := Words("Ich hätte gern Hilfe, don't worry!")
	want := []string{"ich", "hätte", "gern", "hilfe", "don't", "worry"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("words mismatch (-want +got):\n%s", diff)
	}
}

func TestSentencesKeepTerminators(t *testing.T) {
	got := Sentences("Hallo. Wie geht's?\nGut!")
	want := []string{"Hallo.", "Wie geht's?", "Gut!"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("sentences mismatch (-want +got):\n%s", diff)
	}
}

func TestContainsPhraseRespectsBoundaries(t *testing.T) {
	tests := []struct {
		text, phrase string
		want         bool
	}{
		{"ich habe angst", "angst", true},
		{"angstfrei leben", "angst", false},
		{"vielen dank für alles", "vielen dank", true},
		{"für", "für", true},
		{"fürchterlich", "für", false},
		{"not now", "no", false},
		{"", "x", false},
	}
	for _, tt := range tests {
		if got := ContainsPhrase(tt.text, tt.phrase); got != tt.want {
			t.Errorf("ContainsPhrase(%q, %q) = %v, want %v", tt.text, tt.phrase, got, tt.want)
		}
	}
}

func TestIndexPhraseSkipsEmbeddedOccurrence(t *testing.T) {
	if got := IndexPhrase("angstangst angst", "angst"); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestEntropy(t *testing.T) {
	if got := WordEntropy("a a a a"); got != 0 {
		t.Fatalf("expected 0 entropy for a single repeated token, got %v", got)
	}
	if got := WordEntropy("a b"); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1 bit, got %v", got)
	}
}

func TestEntropyIsBitIdentical(t *testing.T) {
	text := "Ich bin nicht panisch, aber ich habe keine Hoffnung mehr. Alles ist sinnlos."
	want := CharEntropy(text)
	wantWords := WordEntropy(text)
	for i := 0; i < 200; i++ {
		if got := CharEntropy(text); got != want {
			t.Fatalf("run %d: char entropy %v, want %v", i, got, want)
		}
		if got := WordEntropy(text); got != wantWords {
			t.Fatalf("run %d: word entropy %v, want %v", i, got, wantWords)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp01(math.NaN()) != 0 || Clamp01(2) != 1 || Clamp01(-1) != 0 || Clamp01(0.4) != 0.4 {
		t.Fatal("clamp01 bounds violated")
	}
}
