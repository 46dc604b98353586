package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field names a numeric measurement of a VitalSample by its JSON key.
type Field string

// Fields readable by rule conditions.
const (
	FieldHeartRate          Field = "heart_rate"
	FieldSystolicBP         Field = "blood_pressure_systolic"
	FieldDiastolicBP        Field = "blood_pressure_diastolic"
	FieldOxygenSaturation   Field = "oxygen_saturation"
	FieldTemperature        Field = "temperature"
	FieldPWaveDuration      Field = "p_wave_duration"
	FieldPRInterval         Field = "pr_interval"
	FieldQRSDuration        Field = "qrs_duration"
	FieldQTInterval         Field = "qt_interval"
	FieldTWaveAmplitude     Field = "t_wave_amplitude"
	FieldSTSegmentElevation Field = "st_segment_elevation"
)

// Valid reports whether f names a field of VitalSample.
func (f Field) Valid() bool {
	_, ok := VitalSample{}.Value(f)
	return ok
}

// Op is a comparison operator.
type Op string

// Supported operators.
const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
)

// Valid reports whether op is a supported operator.
func (op Op) Valid() bool {
	switch op {
	case OpGT, OpGE, OpLT, OpLE, OpEQ:
		return true
	}
	return false
}

// Condition compares one sample field against a constant.
type Condition struct {
	Field Field
	Op    Op
	Value float64
}

// Cond is shorthand for a Condition literal.
func Cond(f Field, op Op, v float64) Condition {
	return Condition{Field: f, Op: op, Value: v}
}

// ParseCondition parses an expression of the form "field op value", e.g.
//
//	heart_rate > 100
//	st_segment_elevation < -0.1
func ParseCondition(expr string) (Condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"field op value\"", expr)
	}
	c := Condition{Field: Field(parts[0]), Op: Op(parts[1])}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: value: %w", expr, err)
	}
	c.Value = v
	if err := c.validate(); err != nil {
		return Condition{}, err
	}
	return c, nil
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, strconv.FormatFloat(c.Value, 'g', -1, 64))
}

func (c Condition) validate() error {
	if !c.Field.Valid() {
		return fmt.Errorf("condition %q: unknown field %q", c, c.Field)
	}
	if !c.Op.Valid() {
		return fmt.Errorf("condition %q: unknown operator %q", c, c.Op)
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("condition %q: value must be finite", c)
	}
	return nil
}

// holds evaluates c against s.
func (c Condition) holds(s VitalSample) bool {
	v, ok := s.Value(c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case OpGT:
		return v > c.Value
	case OpGE:
		return v >= c.Value
	case OpLT:
		return v < c.Value
	case OpLE:
		return v <= c.Value
	case OpEQ:
		return v == c.Value
	default:
		return false
	}
}

// Match selects how a rule combines its conditions.
type Match string

const (
	// MatchAny fires when at least one condition holds. It is the default.
	MatchAny Match = "any"
	// MatchAll fires when every condition holds.
	MatchAll Match = "all"
)

// Rule is one scoring entry of a RuleSet.
//
// Rules are independent: every matching rule contributes its Delta, and tiers
// on the same channel stack.
type Rule struct {
	// Name identifies the rule within its set; it is reported in
	// RiskAssessment.Triggered.
	Name string

	// Channel is the physiological channel the rule belongs to
	// (e.g. "heart_rate", "blood_pressure", "st_elevation").
	Channel string

	// Match combines Conditions. Empty means MatchAny.
	Match Match

	Conditions []Condition

	// Delta is added to the score when the rule fires. Never negative.
	Delta int

	// Emergency forces the CRITICAL level when the rule fires.
	Emergency bool
}

// Matches reports whether r fires for s.
func (r Rule) Matches(s VitalSample) bool {
	if r.Match == MatchAll {
		for _, c := range r.Conditions {
			if !c.holds(s) {
				return false
			}
		}
		return len(r.Conditions) > 0
	}
	for _, c := range r.Conditions {
		if c.holds(s) {
			return true
		}
	}
	return false
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(r.Channel) == "" {
		return fmt.Errorf("rule %q: channel is required", r.Name)
	}
	switch r.Match {
	case "", MatchAny, MatchAll:
	default:
		return fmt.Errorf("rule %q: unknown match %q: want any|all", r.Name, r.Match)
	}
	if r.Delta < 0 {
		return fmt.Errorf("rule %q: delta %d must not be negative", r.Name, r.Delta)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %q: at least one condition is required", r.Name)
	}
	for _, c := range r.Conditions {
		if err := c.validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// clone returns a deep copy of r.
func (r Rule) clone() Rule {
	r.Conditions = append([]Condition(nil), r.Conditions...)
	if r.Match == "" {
		r.Match = MatchAny
	}
	return r
}
