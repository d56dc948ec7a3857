package diagnostics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kasbon/internal/observability/metrics"
	logx "kasbon/pkg/logx"
)

func TestHandler_MetricsAndAuth(t *testing.T) {
	m := metrics.New()
	m.Delivery("app", "sent", "")
	s := New(Config{}, m.Gatherer(), nil, logx.Nop())
	h := s.Handler(Config{Token: "t0k", Pprof: true})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer t0k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || !strings.Contains(string(body), "kasbon_deliveries_total") {
		t.Fatalf("metrics: code=%d body=%s", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/?token=t0k", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pprof index code=%d", rec.Code)
	}
}

func TestHandler_PprofDisabled(t *testing.T) {
	h := New(Config{}, nil, nil, logx.Nop()).Handler(Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	healthy := true
	s := New(Config{}, nil, func() (map[string]any, error) {
		if healthy {
			return map[string]any{"engine": "idle"}, nil
		}
		return nil, errors.New("store closed")
	}, logx.Nop())
	h := s.Handler(Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"engine":"idle"`) {
		t.Fatalf("healthy: %d %s", rec.Code, rec.Body.String())
	}

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded code=%d", rec.Code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackAddr(in); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", in, got, want)
		}
	}
}
