package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/pkg/risk"
)

type intRange struct{ lo, hi int }

type floatRange struct{ lo, hi float64 }

// profile bounds every field a scenario draws. A nil ecg keeps the defaults.
type profile struct {
	heartRate, systolic, diastolic, spo2 intRange
	temperature                          floatRange
	ecg                                  *ecgProfile
}

type ecgProfile struct {
	pWave, pr, qrs, qt, tWave, st floatRange
}

var profiles = map[string]profile{
	config.ScenarioNormal: {
		heartRate:   intRange{65, 80},
		systolic:    intRange{110, 125},
		diastolic:   intRange{70, 80},
		spo2:        intRange{97, 100},
		temperature: floatRange{36.5, 37.2},
		ecg: &ecgProfile{
			pWave: floatRange{0.07, 0.10},
			pr:    floatRange{0.14, 0.18},
			qrs:   floatRange{0.07, 0.09},
			qt:    floatRange{0.38, 0.42},
			tWave: floatRange{0.2, 0.4},
			st:    floatRange{-0.02, 0.05},
		},
	},
	config.ScenarioModerate: {
		heartRate:   intRange{101, 115},
		systolic:    intRange{141, 155},
		diastolic:   intRange{85, 95},
		spo2:        intRange{93, 96},
		temperature: floatRange{37.0, 37.8},
		ecg: &ecgProfile{
			pWave: floatRange{0.08, 0.11},
			pr:    floatRange{0.16, 0.19},
			qrs:   floatRange{0.08, 0.10},
			qt:    floatRange{0.42, 0.46},
			tWave: floatRange{0.15, 0.35},
			st:    floatRange{-0.08, 0.0},
		},
	},
	config.ScenarioHighRisk: {
		heartRate:   intRange{120, 140},
		systolic:    intRange{160, 190},
		diastolic:   intRange{100, 120},
		spo2:        intRange{88, 93},
		temperature: floatRange{37.8, 39.0},
	},
	config.ScenarioCritical: {
		heartRate:   intRange{140, 160},
		systolic:    intRange{180, 200},
		diastolic:   intRange{120, 140},
		spo2:        intRange{85, 89},
		temperature: floatRange{38.5, 40.0},
	},
	config.ScenarioSTEMI: {
		heartRate:   intRange{85, 110},
		systolic:    intRange{110, 140},
		diastolic:   intRange{70, 90},
		spo2:        intRange{93, 97},
		temperature: floatRange{36.6, 37.4},
		ecg: &ecgProfile{
			pWave: floatRange{0.08, 0.10},
			pr:    floatRange{0.15, 0.19},
			qrs:   floatRange{0.08, 0.10},
			qt:    floatRange{0.38, 0.44},
			tWave: floatRange{0.5, 0.8},
			st:    floatRange{0.15, 0.35},
		},
	},
}

// escalation is the start and end of the escalating scenario.
var escalation = struct{ from, to risk.VitalSample }{
	from: risk.VitalSample{
		HeartRate: 75, SystolicBP: 125, DiastolicBP: 78, OxygenSaturation: 98, Temperature: 37.0,
		PWaveDuration: 0.08, PRInterval: 0.16, QRSDuration: 0.08, QTInterval: 0.40,
		TWaveAmplitude: 0.30, STSegmentElevation: 0.0,
	},
	to: risk.VitalSample{
		HeartRate: 160, SystolicBP: 195, DiastolicBP: 128, OxygenSaturation: 83, Temperature: 38.5,
		PWaveDuration: 0.14, PRInterval: 0.24, QRSDuration: 0.14, QTInterval: 0.55,
		TWaveAmplitude: -0.20, STSegmentElevation: 0.25,
	},
}

// Simulator generates synthetic samples for one scenario. Random scenarios
// draw uniformly within their profile; the escalating scenario walks linearly
// from a normal reading to a critical one over Steps readings and then holds.
type Simulator struct {
	src config.Source
	now func() time.Time

	mu   sync.Mutex
	rng  *rand.Rand
	step int
}

// NewSimulator builds a simulator for src. A zero Seed picks a time-based seed.
func NewSimulator(src config.Source) (*Simulator, error) {
	if _, ok := profiles[src.Scenario]; !ok && src.Scenario != config.ScenarioEscalating {
		return nil, fmt.Errorf("simulator %q: unknown scenario %q", src.ID, src.Scenario)
	}
	seed := uint64(src.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if src.Scenario == config.ScenarioEscalating && src.Steps <= 0 {
		src.Steps = config.DefaultSteps
	}
	return &Simulator{
		src: src,
		now: time.Now,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Read implements Source.
func (s *Simulator) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var v risk.VitalSample
	if s.src.Scenario == config.ScenarioEscalating {
		v = s.escalate()
	} else {
		v = s.draw(profiles[s.src.Scenario])
	}
	return Sample{
		SourceID:  s.src.ID,
		PatientID: s.src.PatientID,
		ReadAt:    s.now().UTC(),
		Vitals:    v,
	}, nil
}

func (s *Simulator) draw(p profile) risk.VitalSample {
	v := risk.NewVitalSample(
		s.intn(p.heartRate),
		s.intn(p.systolic),
		s.intn(p.diastolic),
		s.intn(p.spo2),
		round(s.float(p.temperature), 1),
	)
	if p.ecg != nil {
		v = v.WithECG(risk.ECG{
			PWaveDuration:      round(s.float(p.ecg.pWave), 2),
			PRInterval:         round(s.float(p.ecg.pr), 2),
			QRSDuration:        round(s.float(p.ecg.qrs), 2),
			QTInterval:         round(s.float(p.ecg.qt), 2),
			TWaveAmplitude:     round(s.float(p.ecg.tWave), 2),
			STSegmentElevation: round(s.float(p.ecg.st), 2),
		})
	}
	return v
}

func (s *Simulator) escalate() risk.VitalSample {
	progress := 1.0
	if s.step < s.src.Steps-1 {
		progress = float64(s.step) / float64(s.src.Steps-1)
	}
	s.step++

	from, to := escalation.from, escalation.to
	lerpInt := func(a, b int) int { return int(math.Round(float64(a) + progress*float64(b-a))) }
	lerp := func(a, b float64, places int) float64 { return round(a+progress*(b-a), places) }

	return risk.VitalSample{
		HeartRate:          lerpInt(from.HeartRate, to.HeartRate),
		SystolicBP:         lerpInt(from.SystolicBP, to.SystolicBP),
		DiastolicBP:        lerpInt(from.DiastolicBP, to.DiastolicBP),
		OxygenSaturation:   lerpInt(from.OxygenSaturation, to.OxygenSaturation),
		Temperature:        lerp(from.Temperature, to.Temperature, 1),
		PWaveDuration:      lerp(from.PWaveDuration, to.PWaveDuration, 2),
		PRInterval:         lerp(from.PRInterval, to.PRInterval, 2),
		QRSDuration:        lerp(from.QRSDuration, to.QRSDuration, 2),
		QTInterval:         lerp(from.QTInterval, to.QTInterval, 2),
		TWaveAmplitude:     lerp(from.TWaveAmplitude, to.TWaveAmplitude, 2),
		STSegmentElevation: lerp(from.STSegmentElevation, to.STSegmentElevation, 2),
	}
}

func (s *Simulator) intn(r intRange) int {
	return r.lo + s.rng.IntN(r.hi-r.lo+1)
}

func (s *Simulator) float(r floatRange) float64 {
	return r.lo + s.rng.Float64()*(r.hi-r.lo)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
