package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/cardiosense/pkg/risk"
	"github.com/cardiosense/cardiosense/pkg/types"
)

// Log is a durable, time-ordered log of scored readings.
type Log interface {
	// Append adds r to the log. r.ID must be unique.
	Append(ctx context.Context, r types.Reading) error

	// List returns readings matching q, newest first.
	List(ctx context.Context, q Query) ([]types.Reading, error)

	// Get returns the reading with the given ID.
	Get(ctx context.Context, id string) (types.Reading, bool, error)

	// Summary aggregates every reading in the log.
	Summary(ctx context.Context) (Summary, error)

	// Count returns the number of readings held.
	Count(ctx context.Context) (int, error)

	// Clear removes every reading.
	Clear(ctx context.Context) error
}

// Evicter is implemented by logs that drop readings on their own, outside
// Append and Clear.
type Evicter interface {
	OnEvict(fn func(n int))
}

// Query filters List results. Zero values match everything.
type Query struct {
	PatientID string
	Since     time.Time
	Limit     int
}

// NewReading stamps a scored sample with a fresh ID and the given time.
func NewReading(now time.Time, patientID string, s risk.VitalSample, a risk.RiskAssessment, explanation string) types.Reading {
	return types.Reading{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		Timestamp:   now.UTC(),
		Vitals:      s,
		Assessment:  a,
		Explanation: explanation,
	}
}

// NoReadingsMessage is reported by an empty Summary.
const NoReadingsMessage = "No readings recorded"

// Summary is the aggregate report over the reading log.
type Summary struct {
	Message          string             `json:"message,omitempty"`
	TotalReadings    int                `json:"total_readings"`
	Averages         *Averages          `json:"averages,omitempty"`
	RiskDistribution map[risk.Level]int `json:"risk_distribution,omitempty"`
	EmergencyCount   int                `json:"emergency_count,omitempty"`
	HighestRisk      *HighestRisk       `json:"highest_risk,omitempty"`
}

// Averages are rounded to one decimal place.
type Averages struct {
	HeartRate        float64 `json:"heart_rate"`
	BloodPressure    string  `json:"blood_pressure"` // "systolic/diastolic"
	OxygenSaturation float64 `json:"oxygen_saturation"`
	Temperature      float64 `json:"temperature"`
	RiskScore        float64 `json:"risk_score"`
}

// HighestRisk identifies the reading with the largest score. Ties go to the
// earliest reading.
type HighestRisk struct {
	ID        string     `json:"id"`
	Score     int        `json:"score"`
	Level     risk.Level `json:"level"`
	Timestamp time.Time  `json:"timestamp"`
}

// EmptySummary is the report for a log with no readings.
func EmptySummary() Summary {
	return Summary{Message: NoReadingsMessage}
}

// Aggregate holds the row count and unrounded per-column means of the log.
type Aggregate struct {
	Count                                int
	HeartRate, Systolic, Diastolic, SpO2 float64
	Temperature, Score                   float64
}

// Build rounds a into a Summary.
func (s Aggregate) Build(dist map[risk.Level]int, emergencies int, top *HighestRisk) Summary {
	if s.Count == 0 {
		return EmptySummary()
	}
	return Summary{
		TotalReadings: s.Count,
		Averages: &Averages{
			HeartRate:        round1(s.HeartRate),
			BloodPressure:    fmt.Sprintf("%.1f/%.1f", round1(s.Systolic), round1(s.Diastolic)),
			OxygenSaturation: round1(s.SpO2),
			Temperature:      round1(s.Temperature),
			RiskScore:        round1(s.Score),
		},
		RiskDistribution: dist,
		EmergencyCount:   emergencies,
		HighestRisk:      top,
	}
}

// Summarize computes the report over rs in memory.
func Summarize(rs []types.Reading) Summary {
	if len(rs) == 0 {
		return EmptySummary()
	}
	var agg Aggregate
	dist := make(map[risk.Level]int)
	emergencies := 0
	var top *HighestRisk
	for _, r := range rs {
		agg.HeartRate += float64(r.Vitals.HeartRate)
		agg.Systolic += float64(r.Vitals.SystolicBP)
		agg.Diastolic += float64(r.Vitals.DiastolicBP)
		agg.SpO2 += float64(r.Vitals.OxygenSaturation)
		agg.Temperature += r.Vitals.Temperature
		agg.Score += float64(r.Assessment.Score)
		dist[r.Assessment.Level]++
		if r.Assessment.Emergency {
			emergencies++
		}
		if top == nil || r.Assessment.Score > top.Score ||
			(r.Assessment.Score == top.Score && r.Timestamp.Before(top.Timestamp)) {
			top = &HighestRisk{
				ID:        r.ID,
				Score:     r.Assessment.Score,
				Level:     r.Assessment.Level,
				Timestamp: r.Timestamp,
			}
		}
	}
	n := float64(len(rs))
	agg.Count = len(rs)
	agg.HeartRate /= n
	agg.Systolic /= n
	agg.Diastolic /= n
	agg.SpO2 /= n
	agg.Temperature /= n
	agg.Score /= n
	return agg.Build(dist, emergencies, top)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
