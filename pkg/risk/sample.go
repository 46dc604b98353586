package risk

import "encoding/json"

// Default ECG values substituted for fields a sample does not carry.
// They sit at the middle of each clinically normal range.
const (
	DefaultPWaveDuration      = 0.08
	DefaultPRInterval         = 0.16
	DefaultQRSDuration        = 0.09
	DefaultQTInterval         = 0.40
	DefaultTWaveAmplitude     = 0.3
	DefaultSTSegmentElevation = 0.0
)

// VitalSample is one snapshot of a patient's vital signs and ECG-derived
// intervals. It is a value type: Assess receives a copy and never mutates it.
//
// Values outside physiological ranges are representable and are scored, not
// rejected. Range checking belongs to the ingestion boundary.
type VitalSample struct {
	HeartRate        int     `json:"heart_rate"`               // beats per minute
	SystolicBP       int     `json:"blood_pressure_systolic"`  // mmHg
	DiastolicBP      int     `json:"blood_pressure_diastolic"` // mmHg
	OxygenSaturation int     `json:"oxygen_saturation"`        // percent
	Temperature      float64 `json:"temperature"`              // °C

	PWaveDuration      float64 `json:"p_wave_duration"`      // seconds
	PRInterval         float64 `json:"pr_interval"`          // seconds
	QRSDuration        float64 `json:"qrs_duration"`         // seconds
	QTInterval         float64 `json:"qt_interval"`          // seconds
	TWaveAmplitude     float64 `json:"t_wave_amplitude"`     // mV
	STSegmentElevation float64 `json:"st_segment_elevation"` // mV
}

// ECG groups the ECG-derived fields of a sample.
type ECG struct {
	PWaveDuration      float64
	PRInterval         float64
	QRSDuration        float64
	QTInterval         float64
	TWaveAmplitude     float64
	STSegmentElevation float64
}

// DefaultECG returns the values used for ECG fields that are absent.
func DefaultECG() ECG {
	return ECG{
		PWaveDuration:      DefaultPWaveDuration,
		PRInterval:         DefaultPRInterval,
		QRSDuration:        DefaultQRSDuration,
		QTInterval:         DefaultQTInterval,
		TWaveAmplitude:     DefaultTWaveAmplitude,
		STSegmentElevation: DefaultSTSegmentElevation,
	}
}

// NewVitalSample builds a sample from the four basic vitals and fills every
// ECG field with its default.
func NewVitalSample(heartRate, systolic, diastolic, spo2 int, temperature float64) VitalSample {
	return VitalSample{
		HeartRate:        heartRate,
		SystolicBP:       systolic,
		DiastolicBP:      diastolic,
		OxygenSaturation: spo2,
		Temperature:      temperature,
	}.WithECG(DefaultECG())
}

// WithECG returns a copy of s carrying the given ECG fields.
func (s VitalSample) WithECG(e ECG) VitalSample {
	s.PWaveDuration = e.PWaveDuration
	s.PRInterval = e.PRInterval
	s.QRSDuration = e.QRSDuration
	s.QTInterval = e.QTInterval
	s.TWaveAmplitude = e.TWaveAmplitude
	s.STSegmentElevation = e.STSegmentElevation
	return s
}

// ECG returns the ECG-derived fields of s.
func (s VitalSample) ECG() ECG {
	return ECG{
		PWaveDuration:      s.PWaveDuration,
		PRInterval:         s.PRInterval,
		QRSDuration:        s.QRSDuration,
		QTInterval:         s.QTInterval,
		TWaveAmplitude:     s.TWaveAmplitude,
		STSegmentElevation: s.STSegmentElevation,
	}
}

// UnmarshalJSON decodes a sample, substituting the ECG defaults for any ECG
// key missing from the document.
func (s *VitalSample) UnmarshalJSON(data []byte) error {
	type plain VitalSample
	v := plain(VitalSample{}.WithECG(DefaultECG()))
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = VitalSample(v)
	return nil
}

// Value returns the numeric value of field f, or false if f is not a known field.
func (s VitalSample) Value(f Field) (float64, bool) {
	switch f {
	case FieldHeartRate:
		return float64(s.HeartRate), true
	case FieldSystolicBP:
		return float64(s.SystolicBP), true
	case FieldDiastolicBP:
		return float64(s.DiastolicBP), true
	case FieldOxygenSaturation:
		return float64(s.OxygenSaturation), true
	case FieldTemperature:
		return s.Temperature, true
	case FieldPWaveDuration:
		return s.PWaveDuration, true
	case FieldPRInterval:
		return s.PRInterval, true
	case FieldQRSDuration:
		return s.QRSDuration, true
	case FieldQTInterval:
		return s.QTInterval, true
	case FieldTWaveAmplitude:
		return s.TWaveAmplitude, true
	case FieldSTSegmentElevation:
		return s.STSegmentElevation, true
	default:
		return 0, false
	}
}
