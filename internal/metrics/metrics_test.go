package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequestAndClassification(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, reg)

	m.ObserveRequest(http.MethodPost, "/api/journals", http.StatusCreated, 20*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/api/journals", http.StatusCreated, 30*time.Millisecond)
	m.RateLimitHit("/api/login", "ip")
	m.Classification("fallback_timeout", time.Second)

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodPost, "/api/journals", "201")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.rateLimitHits.WithLabelValues("/api/login", "ip")); got != 1 {
		t.Fatalf("expected 1 rate limit hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.classifications.WithLabelValues("fallback_timeout")); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg, reg)
	second := New(reg, reg)
	second.RateLimitHit("/api/signup", "ip")
	if got := testutil.ToFloat64(first.rateLimitHits.WithLabelValues("/api/signup", "ip")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RateLimitHit("/", "ip")
	m.Classification("ok", time.Millisecond)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, reg)
	m.Classification("ok", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "moodjournal_classifier_classifications_total") {
		t.Fatalf("expected classifier counter in exposition, got %s", body)
	}
}
