package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FileScanned()
	m.FileSkipped(SkipTooLarge)
	m.Detection("signature")
	m.ObserveScan(time.Second)
	m.QuarantineOp("isolate", nil)
	m.WatcherEvent("create")
	if m.Registry() != nil {
		t.Error("Expected nil registry for nil metrics")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.FileScanned()
	m.FileScanned()
	m.FileSkipped(SkipTooLarge)
	m.Detection("heuristic")
	m.QuarantineOp("isolate", nil)
	m.QuarantineOp("isolate", errors.New("boom"))

	if got := testutil.ToFloat64(m.filesScanned); got != 2 {
		t.Errorf("Expected files_scanned_total 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.filesSkipped.WithLabelValues(SkipTooLarge)); got != 1 {
		t.Errorf("Expected files_skipped_total{too_large} 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.quarantineOps.WithLabelValues("isolate", "error")); got != 1 {
		t.Errorf("Expected one failed isolate, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Detection("signature")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `wib_detections_total{kind="signature"} 1`) {
		t.Errorf("Expected detections counter in exposition, got:\n%s", body)
	}
}
