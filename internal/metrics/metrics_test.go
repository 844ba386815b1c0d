package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCycleFinished(t *testing.T) {
	m := New()

	m.CycleFinished(time.Second, 6, "")
	m.CycleFinished(time.Second, 0, "sampler")
	m.CycleFinished(time.Second, 0, "sampler")

	if got := testutil.ToFloat64(m.Cycles); got != 3 {
		t.Errorf("cycles = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Records); got != 6 {
		t.Errorf("records = %v, want 6", got)
	}
	if got := testutil.ToFloat64(m.CollectFailures.WithLabelValues("sampler")); got != 2 {
		t.Errorf("sampler failures = %v, want 2", got)
	}
}

func TestSinkWrite(t *testing.T) {
	m := New()

	m.SinkWrite("stdout", nil)
	m.SinkWrite("http", errors.New("boom"))

	if got := testutil.ToFloat64(m.SinkWrites.WithLabelValues("stdout", "ok")); got != 1 {
		t.Errorf("stdout ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SinkWrites.WithLabelValues("http", "error")); got != 1 {
		t.Errorf("http error = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CycleFinished(time.Second, 1, "")
	m.SinkWrite("stdout", nil)
}

func TestHandler(t *testing.T) {
	m := New()
	m.CycleFinished(time.Second, 2, "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "dstat_agent_records_total 2") {
		t.Errorf("metrics output missing records counter:\n%s", body)
	}
}
