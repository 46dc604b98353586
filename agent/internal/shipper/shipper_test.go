package shipper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cardiosense/cardiosense/agent/internal/config"
	"github.com/cardiosense/cardiosense/agent/internal/source"
	"github.com/cardiosense/cardiosense/pkg/risk"
	"github.com/cardiosense/cardiosense/pkg/types"
)

// mockServer records analyze requests. The first failN calls answer with
// failStatus.
type mockServer struct {
	mu         sync.Mutex
	received   []types.AnalyzeRequest
	headers    []http.Header
	failN      int
	failStatus int
	calls      int
}

func (m *mockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if r.Method != http.MethodPost || r.URL.Path != "/api/v1/analyze" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if m.failN > 0 {
		m.failN--
		w.WriteHeader(m.failStatus)
		return
	}

	var req types.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.received = append(m.received, req)
	m.headers = append(m.headers, r.Header.Clone())

	a := risk.Default().Assess(req.VitalSample)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.AnalyzeResponse{
		ID:        "r-1",
		PatientID: req.PatientID,
		Score:     a.Score,
		Level:     a.Level,
		Emergency: a.Emergency,
		Triggered: a.Triggered,
	})
}

func (m *mockServer) requests() []types.AnalyzeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AnalyzeRequest, len(m.received))
	copy(out, m.received)
	return out
}

func (m *mockServer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func startTestServer(t *testing.T, m *mockServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return srv
}

func makeSample(patient string, hr int) source.Sample {
	return source.Sample{
		SourceID:  "bed-1",
		PatientID: patient,
		ReadAt:    time.Now(),
		Vitals:    risk.NewVitalSample(hr, 120, 80, 98, 36.8),
	}
}

func agentCfg(endpoint string) config.AgentConfig {
	return config.AgentConfig{
		ServerEndpoint: endpoint,
		BufferSize:     10,
		Interval:       time.Second,
	}
}

func newShipper(t *testing.T, cfg config.AgentConfig) *Shipper {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.initialBackoff = 10 * time.Millisecond
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- Tests ---

func TestShipper_DeliversSample(t *testing.T) {
	m := &mockServer{}
	srv := startTestServer(t, m)

	s := newShipper(t, agentCfg(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeSample("p-001", 72))
	waitFor(t, func() bool { return len(m.requests()) > 0 })

	reqs := m.requests()
	if len(reqs) != 1 {
		t.Fatalf("server received %d requests, want 1", len(reqs))
	}
	if reqs[0].PatientID != "p-001" {
		t.Errorf("PatientID = %q, want p-001", reqs[0].PatientID)
	}
	if reqs[0].HeartRate != 72 || reqs[0].QTInterval != risk.DefaultQTInterval {
		t.Errorf("vitals = %+v", reqs[0].VitalSample)
	}
}

func TestShipper_MultipleSamples(t *testing.T) {
	m := &mockServer{}
	srv := startTestServer(t, m)

	s := newShipper(t, agentCfg(srv.URL+"/"))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		s.Ship(makeSample("p", 70+i))
	}
	waitFor(t, func() bool { return len(m.requests()) >= 5 })

	if got := len(m.requests()); got != 5 {
		t.Errorf("server received %d requests, want 5", got)
	}
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	// BufferSize=3; Ship 5 items while the shipper is not running.
	// Only the 3 most recent should survive.
	s := newShipper(t, config.AgentConfig{ServerEndpoint: "http://127.0.0.1:1", BufferSize: 3})

	for i := 0; i < 5; i++ {
		s.Ship(makeSample("p", 100+i))
	}
	if s.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", s.Pending())
	}

	var rates []int
	for len(s.buf) > 0 {
		rates = append(rates, (<-s.buf).Vitals.HeartRate)
	}
	for i, want := range []int{102, 103, 104} {
		if rates[i] != want {
			t.Errorf("rates[%d] = %d, want %d", i, rates[i], want)
		}
	}
}

func TestShipper_RetriesTransientErrors(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		m := &mockServer{failN: 2, failStatus: status}
		srv := startTestServer(t, m)

		s := newShipper(t, agentCfg(srv.URL))
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		go s.Run(ctx)

		s.Ship(makeSample("p-retry", 80))
		waitFor(t, func() bool { return len(m.requests()) > 0 })
		cancel()

		if got := len(m.requests()); got != 1 {
			t.Errorf("status %d: delivered %d, want 1 after retries", status, got)
		}
		if got := m.callCount(); got != 3 {
			t.Errorf("status %d: calls = %d, want 3", status, got)
		}
	}
}

func TestShipper_DiscardsRejectedSample(t *testing.T) {
	m := &mockServer{failN: 1, failStatus: http.StatusBadRequest}
	srv := startTestServer(t, m)

	s := newShipper(t, agentCfg(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeSample("bad", 70))
	s.Ship(makeSample("good", 71))
	waitFor(t, func() bool { return len(m.requests()) > 0 })

	reqs := m.requests()
	if len(reqs) != 1 || reqs[0].PatientID != "good" {
		t.Fatalf("received %+v, want only the second sample", reqs)
	}
	if got := m.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2 (rejected sample must not be retried)", got)
	}
}

func TestShipper_SendsAPIKey(t *testing.T) {
	t.Setenv("CARDIOSENSE_API_KEY", "secret-key")
	m := &mockServer{}
	srv := startTestServer(t, m)

	cfg := agentCfg(srv.URL)
	cfg.ServerAuth = config.AuthConfig{Mode: "apikey", KeyEnv: "CARDIOSENSE_API_KEY"}
	s := newShipper(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeSample("p", 75))
	waitFor(t, func() bool { return len(m.requests()) > 0 })

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.headers) != 1 {
		t.Fatalf("received %d requests, want 1", len(m.headers))
	}
	if got := m.headers[0].Get("X-Api-Key"); got != "secret-key" {
		t.Errorf("x-api-key = %q, want secret-key", got)
	}
	if got := m.headers[0].Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestShipper_EmergencyResponseIsDelivered(t *testing.T) {
	m := &mockServer{}
	srv := startTestServer(t, m)

	s := newShipper(t, agentCfg(srv.URL))
	sample := makeSample("p-stemi", 95)
	sample.Vitals.STSegmentElevation = 0.3

	if err := s.send(context.Background(), sample); err != nil {
		t.Fatalf("send: %v", err)
	}
	if reqs := m.requests(); len(reqs) != 1 || reqs[0].STSegmentElevation != 0.3 {
		t.Errorf("received %+v", reqs)
	}
}

func TestShipper_MTLSMissingCert(t *testing.T) {
	cfg := agentCfg("https://localhost:8443")
	cfg.ServerAuth = config.AuthConfig{Mode: "mtls", CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for missing client certificate")
	}
}

func TestShipper_BackoffResets(t *testing.T) {
	b := newBackoff(backoffInitial)
	first := b.next()
	if first > 2*time.Second {
		t.Errorf("first backoff too large: %v", first)
	}
	for i := 0; i < 10; i++ {
		b.next()
	}
	b.reset()
	after := b.next()
	if after > 2*time.Second {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff(backoffInitial)
	for i := 0; i < 50; i++ {
		d := b.next()
		// With jitter, max is backoffMax * 1.25
		if d > backoffMax*2 {
			t.Errorf("backoff[%d] = %v, exceeds 2×max", i, d)
		}
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	s := newShipper(t, agentCfg("http://127.0.0.1:1"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Ship(makeSample("p", 70))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestShipper_ReconfigureSwitchesEndpoint(t *testing.T) {
	first, second := &mockServer{}, &mockServer{}
	srvA := startTestServer(t, first)
	srvB := startTestServer(t, second)

	s := newShipper(t, agentCfg(srvA.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go s.Run(ctx)

	s.Ship(makeSample("before", 70))
	waitFor(t, func() bool { return len(first.requests()) == 1 })

	if err := s.Reconfigure(agentCfg(srvB.URL)); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	s.Ship(makeSample("after", 71))
	waitFor(t, func() bool { return len(second.requests()) == 1 })

	if got := first.requests(); len(got) != 1 || got[0].PatientID != "before" {
		t.Errorf("first server received %+v", got)
	}
	if got := second.requests(); len(got) != 1 || got[0].PatientID != "after" {
		t.Errorf("second server received %+v", got)
	}
}

func TestShipper_ReconfigureKeepsTargetOnError(t *testing.T) {
	m := &mockServer{}
	srv := startTestServer(t, m)
	s := newShipper(t, agentCfg(srv.URL))

	bad := agentCfg("https://other:8443")
	bad.ServerAuth = config.AuthConfig{Mode: "mtls", CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"}
	if err := s.Reconfigure(bad); err == nil {
		t.Fatal("expected error for missing client certificate")
	}
	if err := s.send(context.Background(), makeSample("p", 70)); err != nil {
		t.Fatalf("send after failed reconfigure: %v", err)
	}
	if len(m.requests()) != 1 {
		t.Error("sample did not reach the original server")
	}
}
