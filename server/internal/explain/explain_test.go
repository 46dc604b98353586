package explain

import (
	"testing"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

func TestTemplate_Explain(t *testing.T) {
	rs := risk.Default()
	tpl := Template{}

	stemi := risk.NewVitalSample(155, 190, 95, 98, 37.0)
	stemi.STSegmentElevation = 0.2

	tests := []struct {
		name string
		s    risk.VitalSample
		want string
	}{
		{
			name: "normal",
			s:    risk.NewVitalSample(75, 120, 80, 98, 37.0),
			want: "Risk level: LOW (score 0). All measurements are within normal ranges.",
		},
		{
			name: "fever",
			s:    risk.NewVitalSample(75, 120, 80, 98, 38.6),
			want: "Risk level: LOW (score 2). Abnormal findings: temperature (38.6 °C).",
		},
		{
			name: "emergency",
			s:    stemi,
			want: "Risk level: CRITICAL (score 28). Abnormal findings: heart rate (155 bpm), " +
				"blood pressure (190/95 mmHg) and ST segment (0.20 mV). Immediate medical attention is required.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tpl.Explain(rs, tt.s, rs.Assess(tt.s))
			if got != tt.want {
				t.Errorf("Explain:\n got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestTemplate_Fallback(t *testing.T) {
	a := risk.RiskAssessment{Level: risk.LevelHigh, Score: 9}
	want := "Risk level: HIGH. Unable to generate detailed explanation."

	if got := (Template{}).Explain(nil, risk.VitalSample{}, a); got != want {
		t.Errorf("Explain with nil rule set: got %q, want %q", got, want)
	}
}

func TestJoinList(t *testing.T) {
	tests := map[string][]string{
		"a":          {"a"},
		"a and b":    {"a", "b"},
		"a, b and c": {"a", "b", "c"},
	}
	for want, in := range tests {
		if got := joinList(in); got != want {
			t.Errorf("joinList(%v) = %q, want %q", in, got, want)
		}
	}
}
