package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/agent/internal/source"
)

// Sink receives every sample the collector reads.
type Sink interface {
	Ship(source.Sample)
}

type feed struct {
	cfg config.Source
	src source.Source
}

// Collector reads every configured source once per interval and hands the
// samples to a Sink. Apply swaps in a new configuration while running:
// sources whose settings are unchanged keep their state, others are rebuilt,
// and the ticker is reset when the interval changes.
type Collector struct {
	sink  Sink
	build func(config.Source) (source.Source, error) // injectable for tests

	mu       sync.Mutex
	feeds    []feed
	interval time.Duration
	reset    chan struct{}
}

// New returns a Collector for cfg. Sources that fail to build are logged and
// skipped.
func New(cfg config.AgentConfig, sink Sink) *Collector {
	c := &Collector{
		sink:  sink,
		build: source.New,
		reset: make(chan struct{}, 1),
	}
	c.Apply(cfg)
	<-c.reset // the first interval is picked up by Run
	return c
}

// Apply replaces the source list and interval.
func (c *Collector) Apply(cfg config.AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := make(map[string]feed, len(c.feeds))
	for _, f := range c.feeds {
		existing[f.cfg.ID] = f
	}

	feeds := make([]feed, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		if f, ok := existing[sc.ID]; ok && f.cfg == sc {
			feeds = append(feeds, f)
			continue
		}
		src, err := c.build(sc)
		if err != nil {
			slog.Error("collector: skipping source, could not build it", "source", sc.ID, "err", err)
			continue
		}
		feeds = append(feeds, feed{cfg: sc, src: src})
		slog.Info("collector: registered source",
			"id", sc.ID, "type", sc.Type, "patient_id", sc.PatientID, "scenario", sc.Scenario)
	}
	if len(feeds) == 0 {
		slog.Warn("collector: no sources configured, agent will idle")
	}
	c.feeds = feeds

	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultInterval
	}
	if interval != c.interval {
		c.interval = interval
		select {
		case c.reset <- struct{}{}:
		default:
		}
	}
}

// Sources returns the IDs of the active sources in config order.
func (c *Collector) Sources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.feeds))
	for i, f := range c.feeds {
		ids[i] = f.cfg.ID
	}
	return ids
}

// Interval returns the active collection interval.
func (c *Collector) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Collect reads every source once and ships the samples that were read. It
// returns the number shipped.
func (c *Collector) Collect(ctx context.Context) int {
	c.mu.Lock()
	feeds := c.feeds
	c.mu.Unlock()

	shipped := 0
	for _, f := range feeds {
		sample, err := f.src.Read(ctx)
		if err != nil {
			slog.Warn("collector: read error", "source", f.cfg.ID, "err", err)
			continue
		}
		c.sink.Ship(sample)
		shipped++
		slog.Debug("collector: queued sample",
			"source", f.cfg.ID,
			"patient_id", sample.PatientID,
			"heart_rate", sample.Vitals.HeartRate,
		)
	}
	return shipped
}

// Run collects on every tick until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.reset:
			d := c.Interval()
			ticker.Reset(d)
			slog.Info("collector: interval changed", "interval", d)
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}
