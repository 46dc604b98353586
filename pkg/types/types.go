package types

import (
	"encoding/json"
	"time"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

// PriorityImmediate is the only priority an EmergencyAlert carries.
const PriorityImmediate = "IMMEDIATE"

// AnalyzeRequest is the body of POST /api/v1/analyze. The sample fields sit
// at the top level next to the optional patient_id.
type AnalyzeRequest struct {
	PatientID string `json:"patient_id,omitempty"`
	risk.VitalSample
}

// UnmarshalJSON decodes the patient ID and the embedded sample. The sample's
// own decoder fills ECG defaults, so it must not be bypassed.
func (r *AnalyzeRequest) UnmarshalJSON(data []byte) error {
	var id struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	var s risk.VitalSample
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.PatientID = id.PatientID
	r.VitalSample = s
	return nil
}

// EmergencyAlert is attached to an AnalyzeResponse when the assessment is
// an emergency or CRITICAL.
type EmergencyAlert struct {
	CallEmergencyServices bool   `json:"call_emergency_services"`
	Reason                string `json:"reason"`
	Priority              string `json:"priority"`
}

// NewEmergencyAlert returns the alert block for a, or nil when a does not
// warrant one.
func NewEmergencyAlert(a risk.RiskAssessment) *EmergencyAlert {
	if !a.Emergency && a.Level != risk.LevelCritical {
		return nil
	}
	return &EmergencyAlert{
		CallEmergencyServices: true,
		Reason:                "Critical cardiac event detected",
		Priority:              PriorityImmediate,
	}
}

// Reading is one scored sample as stored in the reading log.
type Reading struct {
	ID          string              `json:"id"`
	PatientID   string              `json:"patient_id,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Vitals      risk.VitalSample    `json:"vitals"`
	Assessment  risk.RiskAssessment `json:"assessment"`
	Explanation string              `json:"explanation,omitempty"`
}

// Critical reports whether the reading should raise an alert.
func (r Reading) Critical() bool {
	return r.Assessment.Emergency || r.Assessment.Level == risk.LevelCritical
}

// AnalyzeResponse is the body returned by POST /api/v1/analyze.
type AnalyzeResponse struct {
	ID             string           `json:"id"`
	PatientID      string           `json:"patient_id,omitempty"`
	Timestamp      string           `json:"timestamp"` // RFC3339
	Score          int              `json:"score"`
	Level          risk.Level       `json:"level"`
	Emergency      bool             `json:"emergency"`
	Triggered      []string         `json:"triggered"`
	RuleSet        string           `json:"rule_set"`
	Explanation    string           `json:"explanation"`
	Vitals         risk.VitalSample `json:"vitals"`
	EmergencyAlert *EmergencyAlert  `json:"emergency_alert,omitempty"`
}

// NewAnalyzeResponse builds the response for a stored reading.
func NewAnalyzeResponse(r Reading) AnalyzeResponse {
	return AnalyzeResponse{
		ID:             r.ID,
		PatientID:      r.PatientID,
		Timestamp:      r.Timestamp.UTC().Format(time.RFC3339),
		Score:          r.Assessment.Score,
		Level:          r.Assessment.Level,
		Emergency:      r.Assessment.Emergency,
		Triggered:      r.Assessment.Triggered,
		RuleSet:        r.Assessment.RuleSet,
		Explanation:    r.Explanation,
		Vitals:         r.Vitals,
		EmergencyAlert: NewEmergencyAlert(r.Assessment),
	}
}
