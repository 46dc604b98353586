package api

import (
	"encoding/json"
	"fmt"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

// requiredFields must be present in every analyze request. The ECG fields
// fall back to their defaults when absent.
var requiredFields = []risk.Field{
	risk.FieldHeartRate,
	risk.FieldSystolicBP,
	risk.FieldDiastolicBP,
	risk.FieldOxygenSaturation,
	risk.FieldTemperature,
}

type bounds struct{ min, max float64 }

// physiologicalRanges are the inclusive limits accepted at ingestion.
var physiologicalRanges = []struct {
	field risk.Field
	bounds
}{
	{risk.FieldHeartRate, bounds{0, 350}},
	{risk.FieldSystolicBP, bounds{0, 400}},
	{risk.FieldDiastolicBP, bounds{0, 400}},
	{risk.FieldOxygenSaturation, bounds{0, 100}},
	{risk.FieldTemperature, bounds{20, 45}},
	{risk.FieldPWaveDuration, bounds{0, 2}},
	{risk.FieldPRInterval, bounds{0, 2}},
	{risk.FieldQRSDuration, bounds{0, 2}},
	{risk.FieldQTInterval, bounds{0, 2}},
	{risk.FieldTWaveAmplitude, bounds{-5, 5}},
	{risk.FieldSTSegmentElevation, bounds{-5, 5}},
}

// checkRequired reports the first required field missing from body.
func checkRequired(body []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	for _, f := range requiredFields {
		v, ok := keys[string(f)]
		if !ok || string(v) == "null" {
			return fmt.Errorf("%s is required", f)
		}
	}
	return nil
}

// validateSample checks s against physiologicalRanges.
func validateSample(s risk.VitalSample) error {
	for _, r := range physiologicalRanges {
		v, _ := s.Value(r.field)
		if v < r.min || v > r.max {
			return fmt.Errorf("%s %g out of range [%g, %g]", r.field, v, r.min, r.max)
		}
	}
	if s.DiastolicBP > s.SystolicBP {
		return fmt.Errorf("blood_pressure_diastolic %d exceeds blood_pressure_systolic %d",
			s.DiastolicBP, s.SystolicBP)
	}
	return nil
}
