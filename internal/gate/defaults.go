package gate

// DefaultARules returns the shipped Gate A rules.
func DefaultARules() []Rule {
	return []Rule{
		{ID: "crisis_literal", Reason: "CRISIS_LITERAL", Severity: SeverityRed, When: "crisis_literal"},
		{ID: "danger_proximity", Reason: "DANGER_PROXIMITY", Severity: SeverityRed, When: "danger_proximity >= 0.65"},
		{ID: "crisis_score", Reason: "CRISIS_SCORE", Severity: SeverityRed, When: "crisis_score >= 0.6"},
		{ID: "hazard", Reason: "HAZARD_CONTENT", Severity: SeverityOrange, When: "hazard_composite >= 0.6"},
		{ID: "acute_panic", Reason: "ACUTE_PANIC", Severity: SeverityOrange, When: "panic_composite >= 0.8"},
		{ID: "dissociation", Reason: "DISSOCIATION", Severity: SeverityYellow, When: "dissociation_composite >= 0.8"},
	}
}

// DefaultBConfig returns the shipped Gate B configuration.
func DefaultBConfig() BConfig {
	return BConfig{
		Rules: []Rule{
			{ID: "hazardous_response", Reason: "HAZARDOUS_RESPONSE", Severity: SeverityRed, When: "hazard_composite >= 0.5"},
			{ID: "response_danger", Reason: "RESPONSE_DANGER", Severity: SeverityRed, When: "danger_proximity >= 0.65"},
			{ID: "hopeless_response", Reason: "HOPELESS_RESPONSE", Severity: SeverityOrange, When: "hopelessness_composite >= 0.6"},
		},
		EscalationThreshold:    0.2,
		SafetyMarkers:          []string{"[safety]", "sicherheitsplan", "safety plan", "krisendienst", "crisis line"},
		ContradictionThreshold: 0.2,
	}
}
