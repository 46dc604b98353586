package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/agent/internal/source"
	"github.com/cardiosense/cardiosense/pkg/risk"
)

type recorder struct {
	mu      sync.Mutex
	samples []source.Sample
}

func (r *recorder) Ship(s source.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recorder) take() []source.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.samples
	r.samples = nil
	return out
}

func sim(id, patient, scenario string) config.Source {
	return config.Source{ID: id, PatientID: patient, Type: config.TypeSimulator, Scenario: scenario, Seed: 1}
}

func patients(samples []source.Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.PatientID
	}
	return out
}

func TestCollect_ReadsEverySource(t *testing.T) {
	rec := &recorder{}
	c := New(config.AgentConfig{Sources: []config.Source{
		sim("bed-1", "p-1", config.ScenarioNormal),
		sim("bed-2", "p-2", config.ScenarioSTEMI),
	}}, rec)

	assert.Equal(t, 2, c.Collect(context.Background()))
	assert.Equal(t, []string{"p-1", "p-2"}, patients(rec.take()))
	assert.Equal(t, config.DefaultInterval, c.Interval())
}

func TestApply_ChangesWhatIsCollected(t *testing.T) {
	rec := &recorder{}
	c := New(config.AgentConfig{Sources: []config.Source{sim("bed-1", "p-1", config.ScenarioNormal)}}, rec)
	c.Collect(context.Background())
	before := rec.take()
	require.Len(t, before, 1)
	assert.Equal(t, risk.LevelLow, risk.Default().Assess(before[0].Vitals).Level)

	c.Apply(config.AgentConfig{Sources: []config.Source{
		sim("bed-1", "p-1", config.ScenarioSTEMI),
		sim("bed-9", "p-9", config.ScenarioNormal),
	}})
	c.Collect(context.Background())
	after := rec.take()

	require.Len(t, after, 2)
	assert.Equal(t, []string{"p-1", "p-9"}, patients(after))
	assert.True(t, risk.Default().Assess(after[0].Vitals).Emergency, "bed-1 was rebuilt as stemi")
	assert.Equal(t, []string{"bed-1", "bed-9"}, c.Sources())
}

func TestApply_KeepsUnchangedSources(t *testing.T) {
	esc := sim("bed-1", "p-1", config.ScenarioEscalating)
	esc.Steps = 3
	rec := &recorder{}
	c := New(config.AgentConfig{Sources: []config.Source{esc}}, rec)

	c.Collect(context.Background())
	c.Apply(config.AgentConfig{Sources: []config.Source{esc, sim("bed-2", "p-2", config.ScenarioNormal)}})
	c.Collect(context.Background())
	c.Collect(context.Background())

	var rates []int
	for _, s := range rec.take() {
		if s.SourceID == "bed-1" {
			rates = append(rates, s.Vitals.HeartRate)
		}
	}
	// The escalating walk continues across the reload instead of restarting.
	require.Len(t, rates, 3)
	assert.Equal(t, 75, rates[0])
	assert.Equal(t, 160, rates[2])
}

func TestApply_SkipsBrokenSource(t *testing.T) {
	rec := &recorder{}
	c := New(config.AgentConfig{}, rec)
	c.build = func(sc config.Source) (source.Source, error) {
		if sc.ID == "broken" {
			return nil, errors.New("no such monitor")
		}
		return source.New(sc)
	}

	c.Apply(config.AgentConfig{Sources: []config.Source{
		{ID: "broken", Type: config.TypePrometheus},
		sim("bed-1", "p-1", config.ScenarioNormal),
	}})
	assert.Equal(t, []string{"bed-1"}, c.Sources())
}

func TestRun_ResetsTickerOnIntervalChange(t *testing.T) {
	rec := &recorder{}
	c := New(config.AgentConfig{
		Interval: time.Hour,
		Sources:  []config.Source{sim("bed-1", "p-1", config.ScenarioNormal)},
	}, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go c.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.take(), "nothing is collected before the first hourly tick")

	c.Apply(config.AgentConfig{
		Interval: 20 * time.Millisecond,
		Sources:  []config.Source{sim("bed-1", "p-1", config.ScenarioNormal)},
	})
	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.samples) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_ReloadAppliesToCollector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	write := func(patient, scenario string) {
		t.Helper()
		body := "agent:\n" +
			"  server_endpoint: \"http://localhost:8080\"\n" +
			"  interval: 1h\n" +
			"  sources:\n" +
			"    - id: bed-1\n" +
			"      type: simulator\n" +
			"      patient_id: " + patient + "\n" +
			"      scenario: " + scenario + "\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("p-1", config.ScenarioNormal)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	rec := &recorder{}
	c := New(cfg.Agent, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go config.Watch(ctx, path, func(updated *config.Config) { c.Apply(updated.Agent) }) //nolint:errcheck

	time.Sleep(100 * time.Millisecond)
	write("p-2", config.ScenarioCritical)

	assert.Eventually(t, func() bool {
		c.Collect(ctx)
		got := rec.take()
		return len(got) == 1 && got[0].PatientID == "p-2" &&
			risk.Default().Assess(got[0].Vitals).Level == risk.LevelCritical
	}, 2*time.Second, 20*time.Millisecond)
}
