package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCleanup(t *testing.T) {
	m := New()
	m.ObserveCleanup(3, 2, nil)
	m.ObserveCleanup(0, 0, errors.New("boom"))

	if got := testutil.ToFloat64(m.InvitationsExpired); got != 3 {
		t.Errorf("InvitationsExpired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.InvitationsDeleted); got != 2 {
		t.Errorf("InvitationsDeleted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CleanupRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCleanup(1, 1, nil)
	m.ObserveNotification("payment_due", 1)
	m.ObserveEmailError()
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveNotification("payment_due", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `paypals_notifications_created_total{type="payment_due"} 2`) {
		t.Errorf("metric missing from output")
	}
}
