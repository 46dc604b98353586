package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

func TestAnalyzeRequest_Decode(t *testing.T) {
	var req AnalyzeRequest
	body := `{"patient_id":"bed-4","heart_rate":88,"blood_pressure_systolic":121,
		"blood_pressure_diastolic":79,"oxygen_saturation":97,"temperature":36.8,"qrs_duration":0.14}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.PatientID != "bed-4" {
		t.Errorf("PatientID = %q, want bed-4", req.PatientID)
	}
	if req.HeartRate != 88 {
		t.Errorf("HeartRate = %d, want 88", req.HeartRate)
	}
	if req.QRSDuration != 0.14 {
		t.Errorf("QRSDuration = %v, want 0.14", req.QRSDuration)
	}
	if req.PRInterval != risk.DefaultPRInterval {
		t.Errorf("PRInterval = %v, want default %v", req.PRInterval, risk.DefaultPRInterval)
	}
}

func TestAnalyzeRequest_EncodeIsFlat(t *testing.T) {
	req := AnalyzeRequest{PatientID: "p1", VitalSample: risk.NewVitalSample(70, 118, 76, 99, 36.9)}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"patient_id", "heart_rate", "st_segment_elevation"} {
		if _, ok := m[k]; !ok {
			t.Errorf("encoded request missing top-level key %q: %s", k, b)
		}
	}
}

func TestNewEmergencyAlert(t *testing.T) {
	tests := []struct {
		name string
		a    risk.RiskAssessment
		want bool
	}{
		{"low", risk.RiskAssessment{Level: risk.LevelLow}, false},
		{"high", risk.RiskAssessment{Level: risk.LevelHigh}, false},
		{"critical", risk.RiskAssessment{Level: risk.LevelCritical}, true},
		{"emergency", risk.RiskAssessment{Level: risk.LevelCritical, Emergency: true}, true},
	}
	for _, tt := range tests {
		got := NewEmergencyAlert(tt.a)
		if (got != nil) != tt.want {
			t.Errorf("%s: NewEmergencyAlert = %v, want alert=%v", tt.name, got, tt.want)
			continue
		}
		if got != nil && (!got.CallEmergencyServices || got.Priority != PriorityImmediate) {
			t.Errorf("%s: alert = %+v", tt.name, got)
		}
	}
}

func TestNewAnalyzeResponse(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Reading{
		ID:         "abc",
		Timestamp:  ts,
		Vitals:     risk.NewVitalSample(155, 120, 80, 98, 37),
		Assessment: risk.RiskAssessment{Score: 10, Level: risk.LevelCritical, Emergency: true, RuleSet: "extended@v2"},
	}
	resp := NewAnalyzeResponse(r)
	if resp.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("Timestamp = %q", resp.Timestamp)
	}
	if resp.EmergencyAlert == nil {
		t.Fatal("EmergencyAlert = nil, want alert")
	}
	if !r.Critical() {
		t.Error("Critical() = false, want true")
	}
}
