package gate

import (
	"strings"

	"github.com/ppiankov/affectgate/internal/feature"
	"github.com/ppiankov/affectgate/internal/textstat"
)

// GateA decides whether a prompt may be sent to the generator.
type GateA struct {
	rules []compiledRule
}

// NewGateA compiles rules against cat.
func NewGateA(cat *feature.Catalog, rules []Rule) (*GateA, error) {
	cr, err := compileRules(cat, rules)
	if err != nil {
		return nil, err
	}
	return &GateA{rules: cr}, nil
}

// Evaluate returns the verdict for prompt and its snapshot. The snapshot
// must carry the safety scan marker; otherwise the prompt is vetoed.
func (g *GateA) Evaluate(prompt string, snap *feature.Snapshot) Verdict {
	var c collector
	if strings.TrimSpace(prompt) == "" {
		c.veto("empty_input", ReasonEmptyInput, SeverityYellow)
	}
	if snap == nil || !snap.Bool(feature.SafetyScanComplete) {
		c.veto("safety_scan", ReasonSafetyScanMissing, SeverityRed)
		return c.verdict(NameA, snap)
	}
	c.rules(g.rules, snap)
	return c.verdict(NameA, snap)
}

// BConfig holds Gate B's rules and built-in check thresholds.
type BConfig struct {
	Rules []Rule `yaml:"rules"`
	// EscalationThreshold is the largest allowed rise in danger proximity
	// from prompt to response.
	EscalationThreshold float64 `yaml:"escalation_threshold"`
	// SafetyMarkers identify retrieved summaries that carry safety context.
	SafetyMarkers []string `yaml:"safety_markers"`
	// ContradictionThreshold is the response hazard level that contradicts
	// retrieved safety context.
	ContradictionThreshold float64 `yaml:"contradiction_threshold"`
}

// GateB decides whether a generated response may be delivered.
type GateB struct {
	cfg   BConfig
	rules []compiledRule
}

// NewGateB compiles cfg.Rules against cat.
func NewGateB(cat *feature.Catalog, cfg BConfig) (*GateB, error) {
	cr, err := compileRules(cat, cfg.Rules)
	if err != nil {
		return nil, err
	}
	markers := make([]string, 0, len(cfg.SafetyMarkers))
	for _, m := range cfg.SafetyMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	cfg.SafetyMarkers = markers
	return &GateB{cfg: cfg, rules: cr}, nil
}

// Evaluate returns the verdict for a response. prompt is the prompt
// snapshot Gate A passed; retrieved are the summaries used in generation.
func (g *GateB) Evaluate(response string, snap, prompt *feature.Snapshot, retrieved []string) Verdict {
	var c collector
	if strings.TrimSpace(response) == "" {
		c.veto("empty_input", ReasonEmptyInput, SeverityYellow)
	}
	if snap == nil || !snap.Bool(feature.SafetyScanComplete) {
		c.veto("safety_scan", ReasonSafetyScanMissing, SeverityRed)
		return c.verdict(NameB, snap)
	}

	promptCrisis := prompt != nil && prompt.Bool(feature.CrisisLiteral)
	if snap.Bool(feature.CrisisLiteral) && !promptCrisis {
		c.veto("crisis_reintroduced", ReasonCrisisReintroduced, SeverityRed)
	}

	if prompt != nil {
		rise := snap.Float(feature.DangerProximity) - prompt.Float(feature.DangerProximity)
		if rise > g.cfg.EscalationThreshold {
			c.veto("risk_escalation", ReasonRiskEscalation, SeverityOrange)
		}
	}

	if g.safetyContext(retrieved) && snap.Float(feature.HazardComposite) >= g.cfg.ContradictionThreshold {
		c.veto("safety_context", ReasonContextContradicted, SeverityRed)
	}

	c.rules(g.rules, snap)
	return c.verdict(NameB, snap)
}

func (g *GateB) safetyContext(retrieved []string) bool {
	for _, r := range retrieved {
		if textstat.ContainsAny(strings.ToLower(r), g.cfg.SafetyMarkers) {
			return true
		}
	}
	return false
}
