package lexicon

import "testing"

func FuzzScore(f *testing.F) {
	f.Add("Ich habe Panik und keine Luft")
	f.Add("panic attack panic")
	f.Add("")
	f.Add("ÄÖÜ ß   '''")

	set, err := Default()
	if err != nil {
		f.Fatal(err)
	}
	s := set.Scorer(nil)

	f.Fuzz(func(t *testing.T, text string) {
		for _, c := range RequiredCategories {
			r := s.Score(text, set.Lexicon(c), c)
			if r.Score < 0 || r.Score > 1 {
				t.Fatalf("score %v out of range for %q", r.Score, text)
			}
			assertNoOverlap(t, r.Matches)
		}
	})
}
