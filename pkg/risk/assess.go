package risk

// RiskAssessment is the result of scoring one sample against one rule set.
type RiskAssessment struct {
	// Score is the sum of the deltas of every triggered rule.
	Score int `json:"score"`

	// Level is derived from Score and Emergency by RuleSet.Classify.
	Level Level `json:"level"`

	// Emergency is set when a triggered rule forces it or when Score reaches
	// the critical threshold.
	Emergency bool `json:"emergency"`

	// Triggered lists the names of the rules that fired, in rule order.
	Triggered []string `json:"triggered"`

	// RuleSet identifies the rule set that produced the assessment ("name@vN").
	RuleSet string `json:"rule_set"`
}

// Assess scores s against rs. It never fails: any representable sample
// produces an assessment. A nil rule set scores nothing and yields LOW.
func Assess(s VitalSample, rs *RuleSet) RiskAssessment {
	if rs == nil {
		return RiskAssessment{Level: LevelLow, Triggered: []string{}}
	}
	return rs.Assess(s)
}

// Assess scores s against every rule in rs. All rules are evaluated; there is
// no short-circuiting between tiers of the same channel.
func (rs *RuleSet) Assess(s VitalSample) RiskAssessment {
	score := 0
	forced := false
	triggered := make([]string, 0, 4)

	for _, r := range rs.rules {
		if !r.Matches(s) {
			continue
		}
		score += r.Delta
		triggered = append(triggered, r.Name)
		if r.Emergency {
			forced = true
		}
	}

	emergency := forced || score >= rs.thresholds.Critical
	return RiskAssessment{
		Score:     score,
		Level:     rs.Classify(score, emergency),
		Emergency: emergency,
		Triggered: triggered,
		RuleSet:   rs.ID(),
	}
}

// Channels returns the distinct channels of the triggered rules, using rs to
// resolve rule names. Unknown names are skipped.
func (a RiskAssessment) Channels(rs *RuleSet) []string {
	if rs == nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, name := range a.Triggered {
		r, ok := rs.Rule(name)
		if !ok {
			continue
		}
		if _, dup := seen[r.Channel]; dup {
			continue
		}
		seen[r.Channel] = struct{}{}
		out = append(out, r.Channel)
	}
	return out
}
