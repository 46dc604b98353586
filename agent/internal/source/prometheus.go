package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/pkg/risk"
)

// Bedside monitor exporter metric names.
const (
	metricHeartRate   = "vital_heart_rate_bpm"
	metricSystolic    = "vital_blood_pressure_systolic_mmhg"
	metricDiastolic   = "vital_blood_pressure_diastolic_mmhg"
	metricSpO2        = "vital_oxygen_saturation_percent"
	metricTemperature = "vital_temperature_celsius"

	metricPWave = "ecg_p_wave_duration_seconds"
	metricPR    = "ecg_pr_interval_seconds"
	metricQRS   = "ecg_qrs_duration_seconds"
	metricQT    = "ecg_qt_interval_seconds"
	metricTWave = "ecg_t_wave_amplitude_mv"
	metricST    = "ecg_st_segment_elevation_mv"
)

// Prometheus reads vitals from a bedside monitor exporter that publishes
// them as gauges in the Prometheus text format.
type Prometheus struct {
	src    config.Source
	client *http.Client
}

// Read fetches the exporter endpoint and assembles a sample. The five basic
// vitals are required; missing ECG metrics take their default values.
func (p *Prometheus) Read(ctx context.Context) (Sample, error) {
	mfs, err := fetchMetrics(ctx, p.client, p.src.Endpoint)
	if err != nil {
		slog.Warn("source: prometheus fetch failed", "source", p.src.ID, "err", err)
		return Sample{}, fmt.Errorf("prometheus source %q: %w", p.src.ID, err)
	}

	vitals, err := vitalsFrom(mfs, p.src.PatientID)
	if err != nil {
		return Sample{}, fmt.Errorf("prometheus source %q: %w", p.src.ID, err)
	}
	return Sample{
		SourceID:  p.src.ID,
		PatientID: p.src.PatientID,
		ReadAt:    time.Now().UTC(),
		Vitals:    vitals,
	}, nil
}

func vitalsFrom(mfs map[string]*dto.MetricFamily, patient string) (risk.VitalSample, error) {
	required := func(name string) (float64, error) {
		v, ok := value(mfs[name], patient)
		if !ok {
			return 0, fmt.Errorf("metric %s missing", name)
		}
		return v, nil
	}
	optional := func(name string, def float64) float64 {
		if v, ok := value(mfs[name], patient); ok {
			return v
		}
		return def
	}

	var basic [5]float64
	for i, name := range []string{metricHeartRate, metricSystolic, metricDiastolic, metricSpO2, metricTemperature} {
		v, err := required(name)
		if err != nil {
			return risk.VitalSample{}, err
		}
		basic[i] = v
	}

	def := risk.DefaultECG()
	return risk.VitalSample{
		HeartRate:        int(math.Round(basic[0])),
		SystolicBP:       int(math.Round(basic[1])),
		DiastolicBP:      int(math.Round(basic[2])),
		OxygenSaturation: int(math.Round(basic[3])),
		Temperature:      basic[4],
	}.WithECG(risk.ECG{
		PWaveDuration:      optional(metricPWave, def.PWaveDuration),
		PRInterval:         optional(metricPR, def.PRInterval),
		QRSDuration:        optional(metricQRS, def.QRSDuration),
		QTInterval:         optional(metricQT, def.QTInterval),
		TWaveAmplitude:     optional(metricTWave, def.TWaveAmplitude),
		STSegmentElevation: optional(metricST, def.STSegmentElevation),
	}), nil
}
