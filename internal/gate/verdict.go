// Package gate renders pass/veto verdicts before generation (Gate A) and
// after it (Gate B). Gates are pure functions of their inputs.
package gate

import (
	"fmt"

	"github.com/ppiankov/affectgate/internal/condition"
	"github.com/ppiankov/affectgate/internal/feature"
)

// Gate identifiers.
const (
	NameA = "gate_a"
	NameB = "gate_b"
)

// Severity is the color of a veto.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityYellow Severity = "yellow"
	SeverityOrange Severity = "orange"
	SeverityRed    Severity = "red"
)

func (s Severity) rank() int {
	switch s {
	case SeverityRed:
		return 3
	case SeverityOrange:
		return 2
	case SeverityYellow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a veto color.
func (s Severity) Valid() bool { return s.rank() > 0 }

// Built-in reason codes.
const (
	ReasonSafetyScanMissing   = "SAFETY_SCAN_MISSING"
	ReasonEmptyInput          = "EMPTY_INPUT"
	ReasonRuleError           = "RULE_ERROR"
	ReasonCrisisReintroduced  = "CRISIS_REINTRODUCED"
	ReasonRiskEscalation      = "RISK_ESCALATION"
	ReasonContextContradicted = "SAFETY_CONTEXT_CONTRADICTION"
)

// Verdict is the outcome of one gate evaluation. It is never modified after
// it is returned.
type Verdict struct {
	Gate           string            `json:"gate"`
	Passed         bool              `json:"passed"`
	VetoReasons    []string          `json:"veto_reasons"`
	RuleViolations []string          `json:"rule_violations"`
	Severity       Severity          `json:"severity,omitempty"`
	Snapshot       *feature.Snapshot `json:"snapshot,omitempty"`
}

// Result is the gate-independent wire form of a verdict.
type Result struct {
	Passed         bool     `json:"passed"`
	VetoReasons    []string `json:"veto_reasons"`
	RuleViolations []string `json:"rule_violations"`
}

// Result returns the wire form. Both gates serialize identically.
func (v Verdict) Result() Result {
	return Result{
		Passed:         v.Passed,
		VetoReasons:    append([]string{}, v.VetoReasons...),
		RuleViolations: append([]string{}, v.RuleViolations...),
	}
}

// Rule vetoes when When holds.
type Rule struct {
	ID       string   `yaml:"id" json:"id"`
	Reason   string   `yaml:"reason" json:"reason"`
	Severity Severity `yaml:"severity" json:"severity"`
	When     string   `yaml:"when" json:"when"`
}

type compiledRule struct {
	Rule
	cond *condition.Condition
}

func compileRules(cat *feature.Catalog, rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" || r.Reason == "" {
			return nil, fmt.Errorf("gate rule %q: id and reason are required", r.ID)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("gate rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if !r.Severity.Valid() {
			return nil, fmt.Errorf("gate rule %s: severity %q must be red, orange or yellow", r.ID, r.Severity)
		}
		c, err := condition.Compile(r.When, cat)
		if err != nil {
			return nil, fmt.Errorf("gate rule %s: %w", r.ID, err)
		}
		out = append(out, compiledRule{Rule: r, cond: c})
	}
	return out, nil
}

// collector accumulates violations in evaluation order.
type collector struct {
	reasons    []string
	violations []string
	severity   Severity
}

func (c *collector) veto(ruleID, reason string, sev Severity) {
	c.violations = append(c.violations, ruleID)
	if !contains(c.reasons, reason) {
		c.reasons = append(c.reasons, reason)
	}
	if sev.rank() > c.severity.rank() {
		c.severity = sev
	}
}

func (c *collector) rules(rules []compiledRule, s *feature.Snapshot) {
	for _, r := range rules {
		hit, err := r.cond.Eval(s)
		if err != nil {
			// Fail closed.
			c.veto(r.ID, ReasonRuleError, SeverityRed)
			continue
		}
		if hit {
			c.veto(r.ID, r.Reason, r.Severity)
		}
	}
}

func (c *collector) verdict(gate string, s *feature.Snapshot) Verdict {
	return Verdict{
		Gate:           gate,
		Passed:         len(c.violations) == 0,
		VetoReasons:    append([]string{}, c.reasons...),
		RuleViolations: append([]string{}, c.violations...),
		Severity:       c.severity,
		Snapshot:       s,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
