package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleSetFile is the YAML document form of a RuleSet.
type ruleSetFile struct {
	Name       string         `yaml:"name"`
	Version    int            `yaml:"version"`
	Thresholds thresholdsFile `yaml:"thresholds"`
	Rules      []ruleFile     `yaml:"rules"`
}

type thresholdsFile struct {
	Moderate int `yaml:"moderate"`
	High     int `yaml:"high"`
	Critical int `yaml:"critical"`
}

type ruleFile struct {
	Name      string   `yaml:"name"`
	Channel   string   `yaml:"channel"`
	When      []string `yaml:"when"`
	Match     Match    `yaml:"match,omitempty"`
	Delta     int      `yaml:"delta"`
	Emergency bool     `yaml:"emergency,omitempty"`
}

// ParseRuleSet decodes a YAML rule set document and validates it.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var f ruleSetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidRuleSet, err)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, rf := range f.Rules {
		conds := make([]Condition, 0, len(rf.When))
		for _, expr := range rf.When {
			c, err := ParseCondition(expr)
			if err != nil {
				return nil, invalid("%s: rules[%d] %q: %v", f.Name, i, rf.Name, err)
			}
			conds = append(conds, c)
		}
		rules = append(rules, Rule{
			Name:       rf.Name,
			Channel:    rf.Channel,
			Match:      rf.Match,
			Conditions: conds,
			Delta:      rf.Delta,
			Emergency:  rf.Emergency,
		})
	}

	th := Thresholds{
		Moderate: f.Thresholds.Moderate,
		High:     f.Thresholds.High,
		Critical: f.Thresholds.Critical,
	}
	return NewRuleSet(f.Name, f.Version, th, rules...)
}

// LoadRuleSet reads and parses the rule set file at path.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("risk: read rule set %q: %w", path, err)
	}
	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("risk: %q: %w", path, err)
	}
	return rs, nil
}

// MarshalRuleSet encodes rs in the YAML form accepted by ParseRuleSet.
func MarshalRuleSet(rs *RuleSet) ([]byte, error) {
	f := ruleSetFile{
		Name:    rs.name,
		Version: rs.version,
		Thresholds: thresholdsFile{
			Moderate: rs.thresholds.Moderate,
			High:     rs.thresholds.High,
			Critical: rs.thresholds.Critical,
		},
	}
	for _, r := range rs.rules {
		when := make([]string, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			when = append(when, c.String())
		}
		f.Rules = append(f.Rules, ruleFile{
			Name:      r.Name,
			Channel:   r.Channel,
			When:      when,
			Match:     r.Match,
			Delta:     r.Delta,
			Emergency: r.Emergency,
		})
	}
	return yaml.Marshal(f)
}
