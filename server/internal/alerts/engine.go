package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/cardiosense/pkg/risk"
	"github.com/cardiosense/cardiosense/pkg/types"
	"github.com/cardiosense/cardiosense/server/internal/config"
)

const (
	defaultCooldown   = 5 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1

	// anonymousPatient keys readings submitted without a patient ID.
	anonymousPatient = "anonymous"
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert is one emergency notification for a patient.
type Alert struct {
	ID                    string     `json:"id"`
	PatientID             string     `json:"patient_id"`
	ReadingID             string     `json:"reading_id"`
	Level                 risk.Level `json:"level"`
	Score                 int        `json:"score"`
	Emergency             bool       `json:"emergency"`
	Triggered             []string   `json:"triggered"`
	Message               string     `json:"message"`
	CallEmergencyServices bool       `json:"call_emergency_services"`
	Priority              string     `json:"priority"`
	FiredAt               time.Time  `json:"fired_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
	State                 string     `json:"state"` // "firing" | "resolved"
}

// Engine watches scored readings and raises an alert when a reading is an
// emergency or CRITICAL. One alert is tracked per patient: it resolves when a
// later reading for that patient is neither. A patient who stays critical is
// re-notified under the same alert ID at most once per cooldown.
//
// Webhook deliveries for one patient are sent in the order the alert changed
// state; different patients deliver concurrently.
//
// Engine is safe for concurrent use.
type Engine struct {
	cooldown time.Duration
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert        // key: patient ID
	lastFire map[string]time.Time     // last fire time per patient (for cooldown)
	history  []*Alert                 // recently resolved alerts
	tail     map[string]chan struct{} // closed when the patient's last queued delivery ends
	client   *http.Client
	now      func() time.Time
	inflight sync.WaitGroup
}

// New creates an Engine from the server alert configuration.
func New(cfg config.AlertsConfig) *Engine {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Engine{
		cooldown: cooldown,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		tail:     make(map[string]chan struct{}),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Notify inspects r and fires, re-notifies or resolves the patient's alert.
// It returns the fired or re-notified alert, or nil when nothing was sent.
// Webhook delivery is asynchronous.
func (e *Engine) Notify(r types.Reading) *Alert {
	key := r.PatientID
	if key == "" {
		key = anonymousPatient
	}
	now := e.now()

	e.mu.Lock()

	if !r.Critical() {
		a, ok := e.active[key]
		if !ok {
			e.mu.Unlock()
			return nil
		}
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		delete(e.active, key)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		alertCopy := *a
		e.dispatchLocked(key, &alertCopy)
		e.mu.Unlock()

		slog.Info("alert resolved", "patient", key, "reading", r.ID)
		return nil
	}

	if last, ok := e.lastFire[key]; ok && now.Sub(last) < e.cooldown {
		e.mu.Unlock()
		slog.Debug("alerts: suppressed by cooldown", "patient", key, "reading", r.ID)
		return nil
	}
	e.lastFire[key] = now

	a, renotify := e.active[key]
	if !renotify {
		a = &Alert{
			ID:                    uuid.NewString(),
			PatientID:             key,
			CallEmergencyServices: true,
			Priority:              types.PriorityImmediate,
			FiredAt:               now,
			State:                 StateFiring,
		}
		e.active[key] = a
	}
	a.ReadingID = r.ID
	a.Level = r.Assessment.Level
	a.Score = r.Assessment.Score
	a.Emergency = r.Assessment.Emergency
	a.Triggered = append([]string(nil), r.Assessment.Triggered...)
	a.Message = message(key, r.Assessment)
	a.UpdatedAt = now

	alertCopy := *a
	e.dispatchLocked(key, &alertCopy)
	e.mu.Unlock()

	slog.Warn("alert fired",
		"alert", alertCopy.ID,
		"patient", key,
		"reading", r.ID,
		"level", alertCopy.Level,
		"score", alertCopy.Score,
		"emergency", alertCopy.Emergency,
		"renotify", renotify,
	)
	return &alertCopy
}

func message(patient string, a risk.RiskAssessment) string {
	msg := fmt.Sprintf("Critical cardiac event detected for %s: level %s, score %d", patient, a.Level, a.Score)
	if len(a.Triggered) > 0 {
		msg += " (" + strings.Join(a.Triggered, ", ") + ")"
	}
	return msg
}

// dispatchLocked queues delivery of a behind the patient's earlier
// deliveries. e.mu must be held so queue order matches state order.
func (e *Engine) dispatchLocked(key string, a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	prev := e.tail[key]
	done := make(chan struct{})
	e.tail[key] = done

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if prev != nil {
			<-prev
		}
		e.deliver(a)
		close(done)

		e.mu.Lock()
		if e.tail[key] == done {
			delete(e.tail, key)
		}
		e.mu.Unlock()
	}()
}

// Wait blocks until every in-flight webhook delivery has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Firing returns the number of alerts currently firing.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
