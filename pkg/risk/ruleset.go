package risk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRuleSet is wrapped by every error NewRuleSet returns.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// Thresholds map a score to a level. A score at or above a threshold reaches
// that level.
type Thresholds struct {
	Moderate int
	High     int
	Critical int
}

func (t Thresholds) validate() error {
	if t.Moderate <= 0 {
		return fmt.Errorf("thresholds: moderate %d must be positive", t.Moderate)
	}
	if t.Moderate >= t.High || t.High >= t.Critical {
		return fmt.Errorf("thresholds: want moderate < high < critical, got %d/%d/%d",
			t.Moderate, t.High, t.Critical)
	}
	return nil
}

// RuleSet is a named, versioned, immutable collection of rules plus the
// score-to-level thresholds. It is safe for concurrent use by any number of
// callers and should be built once and shared.
type RuleSet struct {
	name       string
	version    int
	thresholds Thresholds
	rules      []Rule
}

// NewRuleSet validates its arguments and returns a RuleSet holding copies of
// them. Every error wraps ErrInvalidRuleSet.
func NewRuleSet(name string, version int, th Thresholds, rules ...Rule) (*RuleSet, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid("name is required")
	}
	if version < 1 {
		return nil, invalid("%s: version %d must be at least 1", name, version)
	}
	if err := th.validate(); err != nil {
		return nil, invalid("%s: %v", name, err)
	}
	if len(rules) == 0 {
		return nil, invalid("%s: at least one rule is required", name)
	}

	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, invalid("%s: rules[%d]: %v", name, i, err)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, invalid("%s: rules[%d]: duplicate rule name %q", name, i, r.Name)
		}
		seen[r.Name] = struct{}{}
		out = append(out, r.clone())
	}

	return &RuleSet{
		name:       name,
		version:    version,
		thresholds: th,
		rules:      out,
	}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRuleSet, fmt.Sprintf(format, args...))
}

// Name returns the rule set name, e.g. "extended".
func (rs *RuleSet) Name() string { return rs.name }

// Version returns the rule set version.
func (rs *RuleSet) Version() int { return rs.version }

// ID returns "name@vN".
func (rs *RuleSet) ID() string { return fmt.Sprintf("%s@v%d", rs.name, rs.version) }

// Thresholds returns the score-to-level thresholds.
func (rs *RuleSet) Thresholds() Thresholds { return rs.thresholds }

// Len returns the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Rules returns a copy of the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.clone()
	}
	return out
}

// Rule returns the rule with the given name.
func (rs *RuleSet) Rule(name string) (Rule, bool) {
	for _, r := range rs.rules {
		if r.Name == name {
			return r.clone(), true
		}
	}
	return Rule{}, false
}

// Channels returns the distinct channels in first-seen order.
func (rs *RuleSet) Channels() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range rs.rules {
		if _, ok := seen[r.Channel]; ok {
			continue
		}
		seen[r.Channel] = struct{}{}
		out = append(out, r.Channel)
	}
	return out
}

// Classify maps a score and emergency flag to a level. Emergency always
// yields CRITICAL; otherwise the thresholds are checked from the top down.
func (rs *RuleSet) Classify(score int, emergency bool) Level {
	switch {
	case emergency:
		return LevelCritical
	case score >= rs.thresholds.Critical:
		return LevelCritical
	case score >= rs.thresholds.High:
		return LevelHigh
	case score >= rs.thresholds.Moderate:
		return LevelModerate
	default:
		return LevelLow
	}
}
