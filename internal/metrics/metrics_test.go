package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun("weighting-functions", OutcomeSuccess, 2*time.Second)
	m.ObserveRun("weighting-functions", OutcomeSuccess, time.Second)
	m.ObserveRun("weighting-functions", OutcomeFailed, time.Second)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("weighting-functions", OutcomeSuccess)); got != 2 {
		t.Errorf("success runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("weighting-functions", OutcomeFailed)); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestInFlightAndSubmitted(t *testing.T) {
	m := New()
	m.JobSubmitted("combine-eurostat-data", true)
	m.JobSubmitted("combine-eurostat-data", false)
	m.JobStarted()
	m.JobStarted()
	m.JobFinished()

	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.submitted.WithLabelValues("combine-eurostat-data", "async")); got != 1 {
		t.Errorf("async submissions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.submitted.WithLabelValues("combine-eurostat-data", "sync")); got != 1 {
		t.Errorf("sync submissions = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRun("p", OutcomeSuccess, time.Second)
	m.JobSubmitted("p", false)
	m.JobStarted()
	m.JobFinished()
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun("clean-catchment-geometry", OutcomeTimeout, 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	want := `aquaproc_runs_total{outcome="timeout",process="clean-catchment-geometry"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %q", want)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go runtime collector")
	}
}
