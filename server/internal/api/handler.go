package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cardiosense/cardiosense/pkg/risk"
	"github.com/cardiosense/cardiosense/pkg/types"
	"github.com/cardiosense/cardiosense/server/internal/alerts"
	"github.com/cardiosense/cardiosense/server/internal/cache"
	"github.com/cardiosense/cardiosense/server/internal/events"
	"github.com/cardiosense/cardiosense/server/internal/explain"
	"github.com/cardiosense/cardiosense/server/internal/metrics"
	"github.com/cardiosense/cardiosense/server/internal/ruleset"
	"github.com/cardiosense/cardiosense/server/internal/store"
)

const (
	// maxBodyBytes caps an analyze request body.
	maxBodyBytes = 64 << 10

	// reportCacheKey holds the cached summary report.
	reportCacheKey = "cardiosense:report"
)

// Broadcaster fans a new reading out to live subscribers.
type Broadcaster interface {
	Publish(r types.Reading)
}

// Deps are the collaborators the handler drives. Rules and Log are required;
// the rest fall back to no-ops when nil.
type Deps struct {
	Rules     *ruleset.Holder
	Log       store.Log
	Alerts    *alerts.Engine
	Explainer explain.Explainer
	Events    events.Publisher
	Cache     cache.Cache
	Hub       Broadcaster
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux

	// reportGen is bumped by every invalidation. A report built under an
	// older generation is not written back to the cache.
	reportGen atomic.Uint64
}

// New creates a Handler wired to deps and registers all routes.
func New(deps Deps) http.Handler {
	if deps.Explainer == nil {
		deps.Explainer = explain.Template{}
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &Handler{deps: deps, mux: http.NewServeMux()}
	if ev, ok := deps.Log.(store.Evicter); ok {
		ev.OnEvict(func(int) { h.invalidateReport(context.Background()) })
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/analyze", h.analyze)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/history/", h.getReading) // subtree: extracts {id}
	h.mux.HandleFunc("/api/v1/report", h.report)
	h.mux.HandleFunc("/api/v1/rules", h.rules)
	h.mux.HandleFunc("/api/v1/rules/", h.getRuleSet) // subtree: extracts {name}
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: liveness, active rule set, log size.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n, err := h.deps.Log.Count(r.Context())
	if err != nil {
		slog.Error("api: count readings", "err", err)
		jsonErr(w, http.StatusServiceUnavailable, "reading log unavailable")
		return
	}
	resp := HealthResponse{
		Status:   "ok",
		RuleSet:  h.deps.Rules.Current().ID(),
		Readings: n,
	}
	if h.deps.Alerts != nil {
		resp.Firing = h.deps.Alerts.Firing()
	}
	jsonResp(w, http.StatusOK, resp)
}

// analyze handles POST /api/v1/analyze: validate, score, explain, record, fan out.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxBodyBytes {
		jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if err := checkRequired(body); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	var req types.AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid vitals: "+err.Error())
		return
	}
	if err := validateSample(req.VitalSample); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	reading, err := h.record(r.Context(), req)
	if err != nil {
		slog.Error("api: record reading", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to record reading")
		return
	}
	jsonResp(w, http.StatusOK, types.NewAnalyzeResponse(reading))
}

// record scores req with the active rule set and pushes the reading to every
// collaborator. Only a failed append is fatal.
func (h *Handler) record(ctx context.Context, req types.AnalyzeRequest) (types.Reading, error) {
	rs := h.deps.Rules.Current()
	startedAt := time.Now()
	a := risk.Assess(req.VitalSample, rs)
	if h.deps.Metrics != nil {
		h.deps.Metrics.ObserveAssessment(a, time.Since(startedAt))
	}

	explanation := h.deps.Explainer.Explain(rs, req.VitalSample, a)
	if explanation == "" {
		explanation = explain.Fallback(a.Level)
	}

	reading := store.NewReading(h.deps.Now(), req.PatientID, req.VitalSample, a, explanation)
	if err := h.deps.Log.Append(ctx, reading); err != nil {
		return types.Reading{}, err
	}
	h.invalidateReport(ctx)

	if h.deps.Alerts != nil {
		if fired := h.deps.Alerts.Notify(reading); fired != nil && h.deps.Metrics != nil {
			h.deps.Metrics.AlertsFired.Inc()
		}
	}
	if err := h.deps.Events.Publish(ctx, events.NewEvent(reading)); err != nil {
		slog.Warn("api: publish event", "reading", reading.ID, "err", err)
	}
	if h.deps.Hub != nil {
		h.deps.Hub.Publish(reading)
	}

	slog.Debug("api: reading scored",
		"id", reading.ID,
		"patient", reading.PatientID,
		"score", a.Score,
		"level", a.Level,
		"emergency", a.Emergency,
	)
	return reading, nil
}

// history serves GET /api/v1/history (newest first, ?limit=N, ?patient_id=)
// and DELETE /api/v1/history.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		h.clear(w, r)
		return
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := store.Query{PatientID: r.URL.Query().Get("patient_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}

	readings, err := h.deps.Log.List(r.Context(), q)
	if err != nil {
		slog.Error("api: list readings", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to list readings")
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	jsonResp(w, http.StatusOK, readings)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Log.Clear(r.Context()); err != nil {
		slog.Error("api: clear readings", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to clear readings")
		return
	}
	h.invalidateReport(r.Context())
	slog.Info("api: reading log cleared")
	jsonResp(w, http.StatusOK, ClearResponse{Message: "All readings cleared"})
}

// getReading returns GET /api/v1/history/{id}.
func (h *Handler) getReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/history/")
	if id == "" {
		h.history(w, r)
		return
	}

	reading, ok, err := h.deps.Log.Get(r.Context(), id)
	if err != nil {
		slog.Error("api: get reading", "id", id, "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to load reading")
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "reading not found")
		return
	}
	jsonResp(w, http.StatusOK, reading)
}

// report returns GET /api/v1/report, read through the cache.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	var sum store.Summary
	err := h.deps.Cache.Get(ctx, reportCacheKey, &sum)
	if err == nil {
		jsonResp(w, http.StatusOK, sum)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("api: report cache get", "err", err)
	}

	gen := h.reportGen.Load()
	sum, err = h.deps.Log.Summary(ctx)
	if err != nil {
		slog.Error("api: build report", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	if h.reportGen.Load() == gen {
		if err := h.deps.Cache.Set(ctx, reportCacheKey, sum); err != nil {
			slog.Warn("api: report cache set", "err", err)
		}
		// An invalidation that raced the Set may have deleted before it.
		if h.reportGen.Load() != gen {
			h.invalidateReport(ctx)
		}
	}
	jsonResp(w, http.StatusOK, sum)
}

// rules returns GET /api/v1/rules: the active rule set.
func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toRuleSetResponse(h.deps.Rules.Current()))
}

// getRuleSet returns GET /api/v1/rules/{name}: a built-in rule set.
func (h *Handler) getRuleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/rules/")
	if name == "" {
		h.rules(w, r)
		return
	}
	rs, err := risk.Builtin(name)
	if err != nil {
		jsonErr(w, http.StatusNotFound, "rule set not found")
		return
	}
	jsonResp(w, http.StatusOK, toRuleSetResponse(rs))
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.deps.Alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.deps.Alerts.Active())
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) invalidateReport(ctx context.Context) {
	h.reportGen.Add(1)
	if err := h.deps.Cache.Delete(ctx, reportCacheKey); err != nil {
		slog.Warn("api: report cache invalidate", "err", err)
	}
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
