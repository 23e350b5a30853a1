package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.FetchRequests.WithLabelValues(OutcomeOK).Inc()
	m.FetchRequests.WithLabelValues(OutcomeFailed).Add(2)

	if got := testutil.ToFloat64(m.FetchRequests.WithLabelValues(OutcomeFailed)); got != 2 {
		t.Fatalf("failed fetches = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `skymind_fetch_requests_total{outcome="ok"} 1`) {
		t.Fatalf("counter missing from output:\n%s", rec.Body.String())
	}
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	_ = New()
	_ = New()
}
