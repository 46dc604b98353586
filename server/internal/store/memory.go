package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cardiosense/cardiosense/pkg/types"
)

// Memory is a thread-safe in-memory reading log ordered by timestamp.
// A background goroutine (Run) periodically evicts readings older than the
// configured TTL; MaxEntries caps the log by dropping the oldest readings.
type Memory struct {
	mu       sync.RWMutex
	readings []types.Reading // ascending by Timestamp
	ttl      time.Duration
	max      int
	now      func() time.Time // injectable for deterministic tests
	onEvict  func(n int)
}

var _ Evicter = (*Memory)(nil)

// NewMemory creates a Memory log. ttl <= 0 disables age eviction and
// maxEntries <= 0 leaves the log unbounded.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	return &Memory{
		ttl: ttl,
		max: maxEntries,
		now: time.Now,
	}
}

// Append inserts r in timestamp order. Readings with equal timestamps keep
// their arrival order.
func (m *Memory) Append(_ context.Context, r types.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.readings), func(i int) bool {
		return m.readings[i].Timestamp.After(r.Timestamp)
	})
	m.readings = append(m.readings, types.Reading{})
	copy(m.readings[i+1:], m.readings[i:])
	m.readings[i] = r

	if m.max > 0 && len(m.readings) > m.max {
		drop := len(m.readings) - m.max
		m.readings = append(m.readings[:0:0], m.readings[drop:]...)
	}
	return nil
}

// List returns readings matching q, newest first.
func (m *Memory) List(_ context.Context, q Query) ([]types.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Reading, 0)
	for i := len(m.readings) - 1; i >= 0; i-- {
		r := m.readings[i]
		if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
			break
		}
		if q.PatientID != "" && r.PatientID != q.PatientID {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Get returns the reading with the given ID.
func (m *Memory) Get(_ context.Context, id string) (types.Reading, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.readings {
		if r.ID == id {
			return r, true, nil
		}
	}
	return types.Reading{}, false, nil
}

// Summary aggregates every reading currently held.
func (m *Memory) Summary(_ context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summarize(m.readings), nil
}

// Count returns the number of readings held, including any past TTL that
// have not been evicted yet.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings), nil
}

// Clear removes every reading.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = nil
	return nil
}

// OnEvict registers fn to be called after Evict removes at least one
// reading. It implements Evicter.
func (m *Memory) OnEvict(fn func(n int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = fn
}

// Evict removes readings whose Timestamp is not after now minus TTL.
// It returns the number of readings removed.
func (m *Memory) Evict(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	cutoff := now.Add(-m.ttl)
	n := sort.Search(len(m.readings), func(i int) bool {
		return m.readings[i].Timestamp.After(cutoff)
	})
	if n > 0 {
		m.readings = append(m.readings[:0:0], m.readings[n:]...)
	}
	fn := m.onEvict
	m.mu.Unlock()

	if n > 0 && fn != nil {
		fn(n)
	}
	return n
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second, maximum 1 minute) and blocks until ctx is cancelled.
func (m *Memory) Run(ctx context.Context) {
	if m.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Evict(m.now()); n > 0 {
				slog.Debug("store: evicted expired readings", "count", n)
			}
		}
	}
}
