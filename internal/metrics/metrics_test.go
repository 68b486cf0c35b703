package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAlert(t *testing.T) {
	before := testutil.ToFloat64(alertsTotal.WithLabelValues("due", "toast"))
	RecordAlert("due", "toast")

	if got := testutil.ToFloat64(alertsTotal.WithLabelValues("due", "toast")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestRecordPushAndPrune(t *testing.T) {
	sent := testutil.ToFloat64(pushesTotal.WithLabelValues("sent"))
	pruned := testutil.ToFloat64(subscriptionsPruned)

	RecordPush("sent")
	RecordPush("sent")
	RecordSubscriptionPruned()

	if got := testutil.ToFloat64(pushesTotal.WithLabelValues("sent")); got != sent+2 {
		t.Errorf("pushes: expected %v, got %v", sent+2, got)
	}
	if got := testutil.ToFloat64(subscriptionsPruned); got != pruned+1 {
		t.Errorf("pruned: expected %v, got %v", pruned+1, got)
	}
}

func TestActiveWindows(t *testing.T) {
	before := testutil.ToFloat64(activeWindows)
	IncrementActiveWindows()
	IncrementActiveWindows()
	DecrementActiveWindows()

	if got := testutil.ToFloat64(activeWindows); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestStoreAndIntakeCounters(t *testing.T) {
	RecordStoreError("list_schedules")
	RecordIntakeWrite("insert")
	RecordPushJobRun("ok")
	RecordDerive(2 * time.Millisecond)

	if testutil.ToFloat64(storeErrors.WithLabelValues("list_schedules")) < 1 {
		t.Error("store error not recorded")
	}
	if testutil.ToFloat64(intakeWrites.WithLabelValues("insert")) < 1 {
		t.Error("intake write not recorded")
	}
	if testutil.ToFloat64(pushJobRuns.WithLabelValues("ok")) < 1 {
		t.Error("job run not recorded")
	}
}

func TestHandler(t *testing.T) {
	RecordAlert("reminder", "system")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"dosekeeper_alerts_total", "dosekeeper_derive_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in output", name)
		}
	}
}

func TestUptime(t *testing.T) {
	if Uptime() <= 0 {
		t.Error("uptime should be positive")
	}
}
