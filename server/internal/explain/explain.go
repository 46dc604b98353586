package explain

import (
	"fmt"
	"strings"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

// Explainer turns an assessment into a short human-readable summary. rs is
// the rule set that produced a, used to resolve its triggered rule names.
type Explainer interface {
	Explain(rs *risk.RuleSet, s risk.VitalSample, a risk.RiskAssessment) string
}

// Fallback is the text used when no detailed explanation can be built.
func Fallback(level risk.Level) string {
	return fmt.Sprintf("Risk level: %s. Unable to generate detailed explanation.", level)
}

// Template builds a deterministic one to three sentence explanation naming
// the level, the score and the abnormal channels with their measured values.
type Template struct{}

var _ Explainer = Template{}

// Explain implements Explainer.
func (Template) Explain(rs *risk.RuleSet, s risk.VitalSample, a risk.RiskAssessment) string {
	if rs == nil || a.Level.Rank() < 0 {
		return Fallback(a.Level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Risk level: %s (score %d).", a.Level, a.Score)

	findings := findings(s, a, rs)
	if len(findings) == 0 {
		b.WriteString(" All measurements are within normal ranges.")
	} else {
		b.WriteString(" Abnormal findings: " + joinList(findings) + ".")
	}

	if a.Emergency {
		b.WriteString(" Immediate medical attention is required.")
	}
	return b.String()
}

// findings lists one "label (value)" entry per triggered channel, in rule order.
func findings(s risk.VitalSample, a risk.RiskAssessment, rs *risk.RuleSet) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, name := range a.Triggered {
		r, ok := rs.Rule(name)
		if !ok || len(r.Conditions) == 0 {
			continue
		}
		if _, dup := seen[r.Channel]; dup {
			continue
		}
		seen[r.Channel] = struct{}{}
		out = append(out, describe(s, r))
	}
	return out
}

func describe(s risk.VitalSample, r risk.Rule) string {
	f := r.Conditions[0].Field
	if f == risk.FieldSystolicBP || f == risk.FieldDiastolicBP {
		return fmt.Sprintf("blood pressure (%d/%d mmHg)", s.SystolicBP, s.DiastolicBP)
	}
	u, ok := units[f]
	if !ok {
		return strings.ReplaceAll(r.Channel, "_", " ")
	}
	v, _ := s.Value(f)
	return fmt.Sprintf("%s (%s%s)", u.label, formatValue(v, u.decimals), u.suffix)
}

type unit struct {
	label    string
	suffix   string
	decimals int
}

var units = map[risk.Field]unit{
	risk.FieldHeartRate:          {"heart rate", " bpm", 0},
	risk.FieldOxygenSaturation:   {"oxygen saturation", "%", 0},
	risk.FieldTemperature:        {"temperature", " °C", 1},
	risk.FieldPWaveDuration:      {"P wave duration", " s", 2},
	risk.FieldPRInterval:         {"PR interval", " s", 2},
	risk.FieldQRSDuration:        {"QRS duration", " s", 2},
	risk.FieldQTInterval:         {"QT interval", " s", 2},
	risk.FieldTWaveAmplitude:     {"T wave amplitude", " mV", 2},
	risk.FieldSTSegmentElevation: {"ST segment", " mV", 2},
}

func formatValue(v float64, decimals int) string {
	return fmt.Sprintf("%.*f", decimals, v)
}

func joinList(items []string) string {
	switch len(items) {
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
