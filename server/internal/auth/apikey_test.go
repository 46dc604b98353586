package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func do(t *testing.T, h http.Handler, path, header, key string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	h := APIKey("none", "x-api-key", "secret", nil)(okHandler())
	if code := do(t, h, "/api/v1/history", "", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "", nil)(okHandler())
	if code := do(t, h, "/api/v1/history", "", ""); code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
}

func TestAPIKey(t *testing.T) {
	fails := 0
	h := APIKey("apikey", "X-API-Key", "secret", func() { fails++ }, "/metrics")(okHandler())

	cases := []struct {
		name string
		path string
		key  string
		want int
	}{
		{"correct key", "/api/v1/analyze", "secret", http.StatusOK},
		{"wrong key", "/api/v1/analyze", "nope", http.StatusUnauthorized},
		{"missing key", "/api/v1/analyze", "", http.StatusUnauthorized},
		{"prefix of key", "/api/v1/analyze", "secre", http.StatusUnauthorized},
		{"exempt path", "/metrics", "", http.StatusOK},
		{"exempt subtree", "/metrics/extra", "", http.StatusOK},
		{"similar path not exempt", "/metricsx", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := do(t, h, tc.path, "X-API-Key", tc.key); got != tc.want {
				t.Errorf("status: got %d, want %d", got, tc.want)
			}
		})
	}
	if fails != 4 {
		t.Errorf("onFail calls: got %d, want 4", fails)
	}
}

func TestAPIKey_HeaderCaseInsensitive(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "secret", nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Api-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_UnauthorizedBody(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "secret", nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}
	if body := rec.Body.String(); body != "{\"error\":\"invalid api key\"}\n" {
		t.Errorf("body: got %q", body)
	}
}
