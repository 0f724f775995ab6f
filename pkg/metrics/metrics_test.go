package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResult(t *testing.T) {
	if Result(nil) != "ok" {
		t.Error("Expected ok for nil error")
	}
	if Result(errors.New("x")) != "error" {
		t.Error("Expected error label")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	before := testutil.ToFloat64(CaptureDecisions.WithLabelValues("blurry"))
	CaptureDecisions.WithLabelValues("blurry").Inc()
	if got := testutil.ToFloat64(CaptureDecisions.WithLabelValues("blurry")); got != before+1 {
		t.Errorf("Expected counter %v, got %v", before+1, got)
	}

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "camcapprod_capture_frames_total") {
		t.Error("Expected capture counter in exposition")
	}
}
