package condition

import (
	"testing"

	"github.com/ppiankov/affectgate/internal/feature"
)

func TestCompileRejectsUnknownFeature(t *testing.T) {
	if _, err := Compile("panic_compsite > 0.7", feature.Builtin()); err == nil {
		t.Fatal("expected error for misspelled feature")
	}
}

func TestCompileRejectsNonBool(t *testing.T) {
	if _, err := Compile("panic_composite + 1", feature.Builtin()); err == nil {
		t.Fatal("expected error for non-bool expression")
	}
}

func TestCompileRejectsEmpty(t *testing.T) {
	if _, err := Compile("  ", feature.Builtin()); err == nil {
		t.Fatal("expected error for empty expression")
	}
}

func TestEval(t *testing.T) {
	cat := feature.Builtin()
	s := feature.NewSnapshot(cat)
	if err := s.Set(feature.PanicComposite, feature.Float(0.8)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(feature.CrisisLiteral, feature.Bool(true)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(feature.AffectLabel, feature.Enum("distressed")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		src  string
		want bool
	}{
		{"panic_composite > 0.7", true},
		{"panic_composite > 0.9", false},
		{"crisis_literal", true},
		{"crisis_literal && panic_composite >= 0.8", true},
		{`affect_label == "distressed"`, true},
		{`affect_label in ["calm", "positive"]`, false},
		// Missing identifiers evaluate as catalog defaults.
		{"hazard_composite == 0", true},
		{`risk_band == "low"`, true},
		{"turn_index > 3", false},
	}
	for _, tt := range tests {
		c, err := Compile(tt.src, cat)
		if err != nil {
			t.Fatalf("compile %q: %v", tt.src, err)
		}
		got, err := c.Eval(s)
		if err != nil {
			t.Fatalf("eval %q: %v", tt.src, err)
		}
		if got != tt.want {
			t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestMustCompilePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustCompile("nope >", feature.Builtin())
}
