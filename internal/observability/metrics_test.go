package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/uhmwpe-lab/labdata/internal/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func routed(pattern string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, pattern)
	req := httptest.NewRequest(http.MethodGet, pattern, nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	body := scrape(t, NewMetrics())
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, routed("/test"))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "labdata_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "labdata_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsMiddlewareCountsDenials(t *testing.T) {
	metrics := NewMetrics()
	signal := "UNAUTHENTICATED"
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shared.NoteDenial(r.Context(), signal)
		if signal == "UNAUTHENTICATED" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), routed("/resin-spinning"))
	signal = "FORBIDDEN"
	handler.ServeHTTP(httptest.NewRecorder(), routed("/resin-spinning"))
	handler.ServeHTTP(httptest.NewRecorder(), routed("/resin-spinning"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `labdata_access_denied_total{route="/resin-spinning",signal="UNAUTHENTICATED"} 1`) {
		t.Fatalf("expected unauthenticated denial, got: %s", body)
	}
	if !strings.Contains(body, `labdata_access_denied_total{route="/resin-spinning",signal="FORBIDDEN"} 2`) {
		t.Fatalf("expected forbidden denials, got: %s", body)
	}
}

func TestMetricsMiddlewareIgnoresUnnotedRejections(t *testing.T) {
	metrics := NewMetrics()
	status := http.StatusUnauthorized
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), routed("/auth/login"))
	status = http.StatusForbidden
	handler.ServeHTTP(httptest.NewRecorder(), routed("/auth/login"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `labdata_http_requests_total{code="403",route="/auth/login"} 1`) {
		t.Fatalf("expected request to be recorded, got: %s", body)
	}
	if strings.Contains(body, `labdata_access_denied_total{route="/auth/login"`) {
		t.Fatalf("login failures must not count as guard denials, got: %s", body)
	}
}
