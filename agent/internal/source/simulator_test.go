package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/pkg/risk"
)

func simSource(scenario string, seed int64) config.Source {
	return config.Source{ID: "bed-1", PatientID: "p-1", Type: config.TypeSimulator, Scenario: scenario, Seed: seed}
}

func TestSimulator_ScenarioLevels(t *testing.T) {
	rs := risk.Default()
	tests := []struct {
		scenario string
		want     risk.Level
	}{
		{config.ScenarioNormal, risk.LevelLow},
		{config.ScenarioModerate, risk.LevelModerate},
		{config.ScenarioCritical, risk.LevelCritical},
		{config.ScenarioSTEMI, risk.LevelCritical},
	}
	for _, tc := range tests {
		t.Run(tc.scenario, func(t *testing.T) {
			sim, err := NewSimulator(simSource(tc.scenario, 7))
			require.NoError(t, err)
			for range 200 {
				s, err := sim.Read(context.Background())
				require.NoError(t, err)
				a := rs.Assess(s.Vitals)
				require.Equal(t, tc.want, a.Level, "vitals %+v triggered %v", s.Vitals, a.Triggered)
			}
		})
	}
}

func TestSimulator_STEMITriggersSTElevation(t *testing.T) {
	sim, err := NewSimulator(simSource(config.ScenarioSTEMI, 3))
	require.NoError(t, err)
	s, err := sim.Read(context.Background())
	require.NoError(t, err)

	a := risk.Default().Assess(s.Vitals)
	assert.True(t, a.Emergency)
	assert.Contains(t, a.Triggered, "st_elevation")
}

func TestSimulator_StaysWithinProfile(t *testing.T) {
	for _, scenario := range []string{config.ScenarioNormal, config.ScenarioHighRisk, config.ScenarioCritical} {
		p := profiles[scenario]
		sim, err := NewSimulator(simSource(scenario, 11))
		require.NoError(t, err)
		for range 500 {
			s, _ := sim.Read(context.Background())
			v := s.Vitals
			assert.GreaterOrEqual(t, v.HeartRate, p.heartRate.lo)
			assert.LessOrEqual(t, v.HeartRate, p.heartRate.hi)
			assert.GreaterOrEqual(t, v.OxygenSaturation, p.spo2.lo)
			assert.LessOrEqual(t, v.OxygenSaturation, p.spo2.hi)
			assert.GreaterOrEqual(t, v.Temperature, p.temperature.lo)
			assert.LessOrEqual(t, v.Temperature, p.temperature.hi)
			if p.ecg == nil {
				assert.Equal(t, risk.DefaultECG(), v.ECG())
			}
		}
	}
}

func TestSimulator_SeedIsReproducible(t *testing.T) {
	a, _ := NewSimulator(simSource(config.ScenarioHighRisk, 99))
	b, _ := NewSimulator(simSource(config.ScenarioHighRisk, 99))
	for range 20 {
		sa, _ := a.Read(context.Background())
		sb, _ := b.Read(context.Background())
		require.Equal(t, sa.Vitals, sb.Vitals)
	}
}

func TestSimulator_Escalating(t *testing.T) {
	src := simSource(config.ScenarioEscalating, 1)
	src.Steps = 10
	sim, err := NewSimulator(src)
	require.NoError(t, err)

	rs := risk.Default()
	var scores []int
	var last risk.RiskAssessment
	for range 12 {
		s, err := sim.Read(context.Background())
		require.NoError(t, err)
		last = rs.Assess(s.Vitals)
		scores = append(scores, last.Score)
	}

	assert.Equal(t, 0, scores[0], "first reading is normal")
	assert.Equal(t, risk.LevelCritical, last.Level)
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i], scores[i-1], "score dropped at step %d", i)
	}
	// Holds at the final reading once the walk completes.
	assert.Equal(t, scores[9], scores[11])
}

func TestSimulator_ReadHonoursContext(t *testing.T) {
	sim, _ := NewSimulator(simSource(config.ScenarioNormal, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sim.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulator_SampleMetadata(t *testing.T) {
	sim, _ := NewSimulator(simSource(config.ScenarioNormal, 1))
	s, err := sim.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bed-1", s.SourceID)
	assert.Equal(t, "p-1", s.PatientID)
	assert.False(t, s.ReadAt.IsZero())
}

func TestNew_UnknownScenario(t *testing.T) {
	_, err := New(simSource("zombie", 1))
	assert.Error(t, err)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.Source{ID: "x", Type: "otelcol"})
	assert.Error(t, err)
}
