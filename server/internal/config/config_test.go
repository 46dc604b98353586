package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Agent section only; the server section is absent.
	p := writeConfig(t, `agent:
  server_endpoint: "http://localhost:8080"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Rules.Set != "extended" {
		t.Errorf("rules.set: got %q, want extended", s.Rules.Set)
	}
	if s.History.TTL != DefaultHistoryTTL || s.History.MaxEntries != DefaultHistoryMax {
		t.Errorf("history: got %+v", s.History)
	}
	if s.Storage.Backend != "memory" {
		t.Errorf("storage.backend: got %q, want memory", s.Storage.Backend)
	}
	if s.Alerts.Cooldown != DefaultAlertCooldown {
		t.Errorf("alerts.cooldown: got %v, want %v", s.Alerts.Cooldown, DefaultAlertCooldown)
	}
	if s.Events.Subject != DefaultNATSSubject {
		t.Errorf("events.subject: got %q", s.Events.Subject)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  log_level: debug
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-cs-key
  rules:
    set: basic
  history:
    ttl: 2h
    max_entries: 50
  storage:
    backend: postgres
    dsn_env: CS_DSN
    create_tables: true
  alerts:
    cooldown: 1m
    webhooks:
      - type: slack
        url_env: SLACK_URL
  events:
    backend: kafka
    brokers: ["kafka:9092"]
  cache:
    backend: redis
    addr: redis:6379
    ttl: 10s
  rate_limit:
    rps: 5
    burst: 10
    trusted_proxies: ["10.0.0.0/8", "192.0.2.1"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Auth.EffectiveHeader() != "x-cs-key" {
		t.Errorf("header: got %q, want x-cs-key", s.Auth.EffectiveHeader())
	}
	if s.History.TTL != 2*time.Hour || s.History.MaxEntries != 50 {
		t.Errorf("history: got %+v", s.History)
	}
	if !s.Storage.CreateTables || s.Storage.Table != DefaultTable {
		t.Errorf("storage: got %+v", s.Storage)
	}
	if len(s.Alerts.Webhooks) != 1 || s.Alerts.Webhooks[0].Type != "slack" {
		t.Errorf("alerts.webhooks: got %+v", s.Alerts.Webhooks)
	}
	if s.Events.Topic != DefaultKafkaTopic {
		t.Errorf("events.topic: got %q", s.Events.Topic)
	}
	if s.Cache.TTL != 10*time.Second {
		t.Errorf("cache.ttl: got %v", s.Cache.TTL)
	}
	proxies, err := s.RateLimit.Proxies()
	if err != nil {
		t.Fatalf("RateLimit.Proxies: %v", err)
	}
	if len(proxies) != 2 || proxies[0].String() != "10.0.0.0/8" || proxies[1].String() != "192.0.2.1/32" {
		t.Errorf("trusted proxies: got %v", proxies)
	}
	rs, err := s.Rules.Load()
	if err != nil {
		t.Fatalf("Rules.Load: %v", err)
	}
	if rs.ID() != "basic@v1" {
		t.Errorf("rule set: got %q, want basic@v1", rs.ID())
	}
}

func TestLoad_EnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_DSN", "postgres://cs@db/cs")
	t.Setenv("TEST_HOOK", "https://hooks.example.com/x")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
  storage:
    backend: clickhouse
    dsn_env: TEST_DSN
  alerts:
    webhooks:
      - type: http
        url_env: TEST_HOOK
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
	if d := cfg.Server.Storage.DSN(); d != "postgres://cs@db/cs" {
		t.Errorf("DSN(): got %q", d)
	}
	if u := cfg.Server.Alerts.Webhooks[0].URL(); u != "https://hooks.example.com/x" {
		t.Errorf("URL(): got %q", u)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown auth mode":   "server:\n  auth:\n    mode: oauth2\n",
		"apikey without env":  "server:\n  auth:\n    mode: apikey\n",
		"bad port":            "server:\n  http_port: 70000\n",
		"bad log level":       "server:\n  log_level: loud\n",
		"unknown rule set":    "server:\n  rules:\n    set: pediatric\n",
		"unknown storage":     "server:\n  storage:\n    backend: sqlite\n",
		"postgres no dsn":     "server:\n  storage:\n    backend: postgres\n",
		"negative ttl":        "server:\n  history:\n    ttl: -1m\n",
		"unknown webhook":     "server:\n  alerts:\n    webhooks:\n      - type: email\n",
		"nats without url":    "server:\n  events:\n    backend: nats\n",
		"kafka no brokers":    "server:\n  events:\n    backend: kafka\n",
		"unknown events":      "server:\n  events:\n    backend: sqs\n",
		"redis without addr":  "server:\n  cache:\n    backend: redis\n",
		"rate limit no burst": "server:\n  rate_limit:\n    rps: 5\n    burst: 0\n",
		"bad trusted proxy":   "server:\n  rate_limit:\n    trusted_proxies: [\"lb.internal\"]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, doc)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestRulesConfig_LoadFile(t *testing.T) {
	p := writeConfig(t, `name: ward
version: 4
thresholds: {moderate: 1, high: 2, critical: 3}
rules:
  - name: fever
    channel: temperature
    when: ["temperature > 38.5"]
    delta: 1
`)
	rs, err := RulesConfig{Set: "basic", File: p}.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rs.ID() != "ward@v4" {
		t.Errorf("ID: got %q, want ward@v4", rs.ID())
	}
}

func TestWatchFile_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "v1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, p, func() error {
			calls.Add(1)
			return nil
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		if err := os.WriteFile(p, []byte("v2"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("reload was never called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchFile returned %v, want nil", err)
	}
}

func TestWatchFile_MissingPath(t *testing.T) {
	err := WatchFile(context.Background(), "/nonexistent/rules.yaml", func() error { return nil })
	if err == nil {
		t.Fatal("expected error for missing path, got nil")
	}
}
