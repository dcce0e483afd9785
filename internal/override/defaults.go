package override

import "github.com/ppiankov/affectgate/internal/feature"

// CrisisLiteralRule is the direct-crisis rule. It fires on the literal
// phrase flag alone so composites cannot dilute it.
const CrisisLiteralRule = "crisis_literal"

// CrisisLiteralFloor is the danger proximity floor forced by a crisis
// literal.
const CrisisLiteralFloor = 0.55

// DefaultRules returns the shipped override rules.
func DefaultRules() []Rule {
	return []Rule{
		{ID: CrisisLiteralRule, When: feature.CrisisLiteral, Target: feature.DangerProximity, Floor: CrisisLiteralFloor, Priority: 100},
		{ID: "crisis_literal_score", When: feature.CrisisLiteral, Target: feature.CrisisScore, Floor: 0.6, Priority: 100},
		{ID: "hopelessness_with_means", When: "hopelessness_composite > 0.6 && hazard_composite > 0.4", Target: feature.DangerProximity, Floor: 0.7, Priority: 60},
		{ID: "panic_danger", When: "panic_composite > 0.7", Target: feature.DangerProximity, Floor: 0.65, Priority: 50},
		{ID: "urgent_hazard", When: "hazard_composite > 0.5 && urgency_context", Target: feature.DangerProximity, Floor: 0.6, Priority: 40},
		{ID: "dissociation_crisis", When: "dissociation_composite > 0.7", Target: feature.CrisisScore, Floor: 0.5, Priority: 30},
	}
}
