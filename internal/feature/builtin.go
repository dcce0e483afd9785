package feature

import "sync"

// Phase numbers.
const (
	PhaseRaw       = 1
	PhaseAffect    = 2
	PhaseSafety    = 3
	PhaseSynthesis = 4
	PhaseDyadic    = 5
)

// Phase 1: independent raw features.
const (
	TokenCount            = "token_count"
	UniqueTokenRatio      = "unique_token_ratio"
	AvgWordLength         = "avg_word_length"
	CharEntropy           = "char_entropy"
	WordEntropy           = "word_entropy"
	ExclamationRatio      = "exclamation_ratio"
	QuestionRatio         = "question_ratio"
	UppercaseRatio        = "uppercase_ratio"
	SentenceCount         = "sentence_count"
	Coherence             = "coherence"
	Flow                  = "flow"
	LoopScore             = "loop_score"
	KeywordDensity        = "keyword_density"
	LexPanic              = "lex_panic"
	LexDissociation       = "lex_dissociation"
	LexHazard             = "lex_hazard"
	LexPositive           = "lex_positive"
	LexNegative           = "lex_negative"
	LexHopelessness       = "lex_hopelessness"
	LexTrauma             = "lex_trauma"
	AdjPanic              = "adj_panic"
	AdjDissociation       = "adj_dissociation"
	AdjHazard             = "adj_hazard"
	AdjPositive           = "adj_positive"
	AdjNegative           = "adj_negative"
	AdjHopelessness       = "adj_hopelessness"
	AdjTrauma             = "adj_trauma"
	NegationPresent       = "negation_present"
	HypotheticalPresent   = "hypothetical_present"
	ReportedSpeechPresent = "reported_speech_present"
	PositiveContext       = "positive_context"
	UrgencyContext        = "urgency_context"
	CrisisLiteral         = "crisis_literal"
	CrisisLiteralCount    = "crisis_literal_count"
)

// Phase 2: derived affect.
const (
	AffectValence   = "affect_valence"
	AffectArousal   = "affect_arousal"
	AffectStability = "affect_stability"
	Rumination      = "rumination"
	ValenceDelta    = "valence_delta"
	AffectLabel     = "affect_label"
)

// Phase 3: safety-critical composites.
const (
	PanicComposite        = "panic_composite"
	DissociationComposite = "dissociation_composite"
	TraumaLoad            = "trauma_load"
	HopelessnessComposite = "hopelessness_composite"
	HazardComposite       = "hazard_composite"
	CrisisScore           = "crisis_score"
	DangerProximity       = "danger_proximity"
	SafetyScanComplete    = "safety_scan_complete"
)

// Phase 4: system synthesis.
const (
	ContextSupport  = "context_support"
	SystemReadiness = "system_readiness"
	RiskLevel       = "risk_level"
	Commitment      = "commitment"
	SessionDrift    = "session_drift"
	TurnIndex       = "turn_index"
	FinalScore      = "final_score"
	RiskBand        = "risk_band"
	SnapshotDigest  = "snapshot_digest"
)

// Phase 5: dyadic (response against its prompt).
const (
	ResponseOverlap = "response_overlap"
	RiskEcho        = "risk_echo"
	AffectShift     = "affect_shift"
	RiskEscalation  = "risk_escalation"
)

// Enumerations.
var (
	AffectLabels = []string{"positive", "calm", "flat", "agitated", "distressed"}
	RiskBands    = []string{"low", "moderate", "high", "critical"}
)

// DigestLen is the length of the snapshot digest feature in hex chars.
const DigestLen = 16

var (
	builtinOnce sync.Once
	builtin     *Catalog
)

// Builtin returns the process-wide catalog of built-in features. It is
// built on first use and never modified afterwards.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		c, err := NewCatalog(builtinDefs())
		if err != nil {
			panic("feature: builtin catalog: " + err.Error())
		}
		builtin = c
	})
	return builtin
}

func unit(num int, id, secondary, category string, phase int, doc string) Def {
	return Def{Num: num, ID: id, Name: id, Secondary: secondary, Category: category,
		Phase: phase, Kind: KindFloat, Min: 0, Max: 1, Default: Float(0), Doc: doc}
}

func span(num int, id, secondary, category string, phase int, min, max float64, doc string) Def {
	return Def{Num: num, ID: id, Name: id, Secondary: secondary, Category: category,
		Phase: phase, Kind: KindFloat, Min: min, Max: max, Default: Float(0), Doc: doc}
}

func flag(num int, id, secondary, category string, phase int, doc string) Def {
	return Def{Num: num, ID: id, Name: id, Secondary: secondary, Category: category,
		Phase: phase, Kind: KindBool, Default: Bool(false), Doc: doc}
}

func builtinDefs() []Def {
	return []Def{
		span(1, TokenCount, "TokenCount", "text", PhaseRaw, 0, 1e6, "number of word tokens"),
		unit(2, UniqueTokenRatio, "LexicalDiversity", "text", PhaseRaw, "distinct tokens / tokens"),
		span(3, AvgWordLength, "AvgWordLength", "text", PhaseRaw, 0, 1e3, "mean token length in runes"),
		span(4, CharEntropy, "CharEntropy", "text", PhaseRaw, 0, 32, "Shannon entropy of runes, bits"),
		span(5, WordEntropy, "WordEntropy", "text", PhaseRaw, 0, 32, "Shannon entropy of tokens, bits"),
		unit(6, ExclamationRatio, "ExclamationRatio", "text", PhaseRaw, "sentences ending in '!'"),
		unit(7, QuestionRatio, "QuestionRatio", "text", PhaseRaw, "sentences ending in '?'"),
		unit(8, UppercaseRatio, "ShoutRatio", "text", PhaseRaw, "fully upper-cased tokens / tokens"),
		span(9, SentenceCount, "SentenceCount", "text", PhaseRaw, 0, 1e6, "number of sentences"),
		unit(10, Coherence, "Coherence", "flow", PhaseRaw, "mean token overlap of adjacent sentences"),
		unit(11, Flow, "Flow", "flow", PhaseRaw, "1 - coefficient of variation of sentence lengths"),
		unit(12, LoopScore, "LoopDetection", "flow", PhaseRaw, "share of repeated trigrams"),
		unit(13, KeywordDensity, "KeywordDensity", "text", PhaseRaw, "extracted keywords / tokens"),
		unit(14, LexPanic, "PanicRaw", "lexicon", PhaseRaw, "raw panic lexicon score"),
		unit(15, LexDissociation, "DissociationRaw", "lexicon", PhaseRaw, "raw dissociation lexicon score"),
		unit(16, LexHazard, "HazardRaw", "lexicon", PhaseRaw, "raw hazard lexicon score"),
		unit(17, LexPositive, "PositiveAffectRaw", "lexicon", PhaseRaw, "raw positive affect lexicon score"),
		unit(18, LexNegative, "NegativeAffectRaw", "lexicon", PhaseRaw, "raw negative affect lexicon score"),
		unit(19, LexHopelessness, "HopelessnessRaw", "lexicon", PhaseRaw, "raw hopelessness lexicon score"),
		unit(20, LexTrauma, "TraumaRaw", "lexicon", PhaseRaw, "raw trauma lexicon score"),
		unit(21, AdjPanic, "Panic", "lexicon", PhaseRaw, "context-adjusted panic score"),
		unit(22, AdjDissociation, "Dissociation", "lexicon", PhaseRaw, "context-adjusted dissociation score"),
		unit(23, AdjHazard, "Hazard", "lexicon", PhaseRaw, "context-adjusted hazard score"),
		unit(24, AdjPositive, "PositiveAffect", "lexicon", PhaseRaw, "context-adjusted positive affect score"),
		unit(25, AdjNegative, "NegativeAffect", "lexicon", PhaseRaw, "context-adjusted negative affect score"),
		unit(26, AdjHopelessness, "Hopelessness", "lexicon", PhaseRaw, "context-adjusted hopelessness score"),
		unit(27, AdjTrauma, "Trauma", "lexicon", PhaseRaw, "context-adjusted trauma score"),
		flag(28, NegationPresent, "Negated", "context", PhaseRaw, "a scored term was negated"),
		flag(29, HypotheticalPresent, "Hypothetical", "context", PhaseRaw, "conditional framing detected"),
		flag(30, ReportedSpeechPresent, "ReportedSpeech", "context", PhaseRaw, "reporting verb or quotation detected"),
		flag(31, PositiveContext, "PositiveContext", "context", PhaseRaw, "gratitude or resolved-past markers"),
		flag(32, UrgencyContext, "UrgencyContext", "context", PhaseRaw, "urgency markers"),
		flag(33, CrisisLiteral, "DirectCrisis", "safety", PhaseRaw, "explicit crisis phrase present"),
		span(34, CrisisLiteralCount, "DirectCrisisCount", "safety", PhaseRaw, 0, 1e3, "explicit crisis phrases found"),

		span(40, AffectValence, "GlobalValence", "affect", PhaseAffect, -1, 1, "positive minus negative affect"),
		unit(41, AffectArousal, "GlobalArousal", "affect", PhaseAffect, "activation level"),
		unit(42, AffectStability, "AffectStability", "affect", PhaseAffect, "coherence and flow net of loops"),
		unit(43, Rumination, "Rumination", "affect", PhaseAffect, "looping negative content"),
		span(44, ValenceDelta, "ValenceGradient", "affect", PhaseAffect, -2, 2, "valence change against previous turn"),
		{Num: 45, ID: AffectLabel, Name: AffectLabel, Secondary: "AffectState", Category: "affect",
			Phase: PhaseAffect, Kind: KindEnum, Enum: AffectLabels, Default: Enum("flat"),
			Doc: "coarse affect state"},

		unit(60, PanicComposite, "PanicIndex", "safety", PhaseSafety, "panic composite"),
		unit(61, DissociationComposite, "DissociationIndex", "safety", PhaseSafety, "dissociation composite"),
		unit(62, TraumaLoad, "TraumaLoad", "safety", PhaseSafety, "trauma composite"),
		unit(63, HopelessnessComposite, "HopelessnessIndex", "safety", PhaseSafety, "hopelessness composite"),
		unit(64, HazardComposite, "HazardIndex", "safety", PhaseSafety, "hazard composite"),
		unit(65, CrisisScore, "CrisisScore", "safety", PhaseSafety, "crisis composite"),
		unit(66, DangerProximity, "DangerProximity", "safety", PhaseSafety, "distance to acute danger, 1 = acute"),
		flag(67, SafetyScanComplete, "SafetyScan", "safety", PhaseSafety, "safety composites computed"),

		unit(80, ContextSupport, "ContextSupport", "system", PhaseSynthesis, "support from retrieved context"),
		unit(81, SystemReadiness, "Readiness", "system", PhaseSynthesis, "readiness to generate freely"),
		unit(82, RiskLevel, "RiskLevel", "system", PhaseSynthesis, "overall risk"),
		unit(83, Commitment, "Commitment", "system", PhaseSynthesis, "engagement with the conversation"),
		unit(84, SessionDrift, "SessionDrift", "system", PhaseSynthesis, "risk change against previous turn"),
		span(85, TurnIndex, "TurnIndex", "system", PhaseSynthesis, 0, 1e9, "turn number in session"),
		unit(86, FinalScore, "FinalScore", "system", PhaseSynthesis, "single composite score"),
		{Num: 87, ID: RiskBand, Name: RiskBand, Secondary: "RiskBand", Category: "system",
			Phase: PhaseSynthesis, Kind: KindEnum, Enum: RiskBands, Default: Enum("low"),
			Doc: "banded risk level"},
		{Num: 88, ID: SnapshotDigest, Name: SnapshotDigest, Secondary: "Fingerprint", Category: "system",
			Phase: PhaseSynthesis, Kind: KindHex, HexLen: DigestLen, Default: Hex("0000000000000000"),
			Doc: "digest of phases 1-3"},

		unit(100, ResponseOverlap, "ResponseOverlap", "dyadic", PhaseDyadic, "token overlap with the prompt"),
		unit(101, RiskEcho, "RiskEcho", "dyadic", PhaseDyadic, "prompt risk terms repeated in the response"),
		span(102, AffectShift, "AffectShift", "dyadic", PhaseDyadic, -2, 2, "response valence minus prompt valence"),
		span(103, RiskEscalation, "RiskEscalation", "dyadic", PhaseDyadic, -1, 1, "response danger minus prompt danger"),
	}
}
