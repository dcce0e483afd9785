// Package override raises safety composites to fixed floors when trigger
// conditions hold. Rules only ever raise values.
package override

import (
	"fmt"
	"sort"

	"github.com/ppiankov/affectgate/internal/condition"
	"github.com/ppiankov/affectgate/internal/feature"
)

// Rule forces Target to at least Floor when When holds.
type Rule struct {
	ID       string  `yaml:"id" json:"id"`
	When     string  `yaml:"when" json:"when"`
	Target   string  `yaml:"target" json:"target"`
	Floor    float64 `yaml:"floor" json:"floor"`
	Priority int     `yaml:"priority" json:"priority"`
}

// Applied describes one triggered rule.
type Applied struct {
	Rule     string  `json:"rule"`
	Target   string  `json:"target"`
	Floor    float64 `json:"floor"`
	Priority int     `json:"priority"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	Raised   bool    `json:"raised"`
}

type compiled struct {
	Rule
	cond *condition.Condition
}

// Policy is a validated, ordered rule set. It is immutable and safe for
// concurrent use.
type Policy struct {
	cat   *feature.Catalog
	rules []compiled
}

// NewPolicy validates rules against cat. Targets must be float features of
// the safety phase; floors must lie in [0,1].
func NewPolicy(cat *feature.Catalog, rules []Rule) (*Policy, error) {
	p := &Policy{cat: cat}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("override: rule with empty id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("override %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		d, ok := cat.Lookup(r.Target)
		if !ok {
			return nil, fmt.Errorf("override %s: unknown target %q", r.ID, r.Target)
		}
		if d.Phase != feature.PhaseSafety || d.Kind != feature.KindFloat {
			return nil, fmt.Errorf("override %s: target %s must be a float feature of phase %d", r.ID, r.Target, feature.PhaseSafety)
		}
		if r.Floor < 0 || r.Floor > 1 {
			return nil, fmt.Errorf("override %s: floor %g outside [0,1]", r.ID, r.Floor)
		}
		c, err := condition.Compile(r.When, cat)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", r.ID, err)
		}
		p.rules = append(p.rules, compiled{Rule: r, cond: c})
	}
	sort.SliceStable(p.rules, func(i, j int) bool {
		if p.rules[i].Priority != p.rules[j].Priority {
			return p.rules[i].Priority > p.rules[j].Priority
		}
		return p.rules[i].ID < p.rules[j].ID
	})
	return p, nil
}

// Rules returns the rules in evaluation order.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Rule
	}
	return out
}

// Apply evaluates every rule against s and returns a copy with each
// triggered target raised to the highest triggered floor. s is not
// modified. Every triggered rule is reported; Raised marks the rule whose
// floor actually changed the value.
func (p *Policy) Apply(s *feature.Snapshot) (*feature.Snapshot, []Applied, error) {
	var triggered []compiled
	for _, r := range p.rules {
		ok, err := r.cond.Eval(s)
		if err != nil {
			return nil, nil, fmt.Errorf("override %s: %w", r.ID, err)
		}
		if ok {
			triggered = append(triggered, r)
		}
	}
	out := s.Clone()
	if len(triggered) == 0 {
		return out, nil, nil
	}

	// Highest floor per target; ties go to the higher priority rule, which
	// comes first in triggered.
	winner := make(map[string]compiled)
	for _, r := range triggered {
		if w, ok := winner[r.Target]; !ok || r.Floor > w.Floor {
			winner[r.Target] = r
		}
	}

	applied := make([]Applied, 0, len(triggered))
	raisedBy := make(map[string]Applied)
	for target, r := range winner {
		before := s.Float(target)
		raised, err := out.Raise(target, r.Floor)
		if err != nil {
			return nil, nil, fmt.Errorf("override %s: %w", r.ID, err)
		}
		raisedBy[target] = Applied{Before: before, After: out.Float(target), Raised: raised}
	}
	for _, r := range triggered {
		res := raisedBy[r.Target]
		a := Applied{
			Rule:     r.ID,
			Target:   r.Target,
			Floor:    r.Floor,
			Priority: r.Priority,
			Before:   res.Before,
			After:    res.After,
		}
		if winner[r.Target].ID == r.ID {
			a.Raised = res.Raised
		}
		applied = append(applied, a)
	}
	return out, applied, nil
}
