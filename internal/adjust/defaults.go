package adjust

// DefaultConfig returns the shipped factors and German/English markers.
func DefaultConfig() Config {
	return Config{
		Negation: Negation{
			Window: 3,
			Factor: 0.2,
			Markers: []string{
				"nicht", "kein", "keine", "keinen", "keiner", "nie", "niemals", "ohne", "nichts",
				"not", "no", "never", "don't", "dont", "doesn't", "isn't", "wasn't", "without", "nothing",
			},
		},
		ReportedSpeech: ReportedSpeech{
			Verbs: []string{
				"sagte", "sagt", "meinte", "meint", "erzählte", "erzählt", "schrieb", "schreibt",
				"behauptete", "fragte", "hat gesagt", "hat geschrieben",
				"said", "says", "told", "wrote", "writes", "asked", "claimed",
			},
			Quotes:   "\"„“”«»",
			Strong:   0.3,
			Moderate: 0.6,
		},
		Hypothetical: Hypothetical{
			Markers: []string{
				"was wäre wenn", "stell dir vor", "angenommen", "hypothetisch", "rein theoretisch",
				"falls", "würde", "hätte", "könnte",
				"what if", "imagine", "suppose", "hypothetically", "in theory", "would", "could",
			},
			Scale: 0.5,
		},
		Situational: Situational{
			Positive: []string{
				"danke", "vielen dank", "dankbar", "überstanden", "ist vorbei", "war damals",
				"damals", "vor jahren", "früher", "geschafft", "hat geholfen",
				"thank you", "thanks", "grateful", "it's over", "years ago", "back then", "used to",
				"got through",
			},
			Negative: []string{
				"sofort", "dringend", "notfall", "schnell", "jetzt gleich", "gerade jetzt", "hilf mir",
				"right now", "urgent", "emergency", "immediately", "asap", "help me",
			},
			Reduce:  0.3,
			Amplify: 1.5,
		},
	}
}
