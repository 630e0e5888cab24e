package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestScenarioMetricsRecordSteps(t *testing.T) {
	m := Scenario()
	before := testutil.ToFloat64(m.StepCounterVec().WithLabelValues("provision", "ok"))
	m.ObserveStep("provision", nil, 20*time.Millisecond)
	m.ObserveStep("provision", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(m.StepCounterVec().WithLabelValues("provision", "ok")); got != before+1 {
		t.Fatalf("ok steps = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(m.StepCounterVec().WithLabelValues("provision", "error")); got < 1 {
		t.Fatalf("error steps = %v", got)
	}
}

func TestScenarioMetricsRecordRounds(t *testing.T) {
	m := Scenario()
	m.ObserveRound(1, 3_000_000, 1_000_000, 0)
	m.IncAssertionFailure("")

	if got := testutil.ToFloat64(m.AttackerBalanceVec().WithLabelValues("1")); got != 3_000_000 {
		t.Fatalf("attacker balance = %v", got)
	}
	if got := testutil.ToFloat64(m.StolenVec().WithLabelValues("1")); got != 1_000_000 {
		t.Fatalf("stolen = %v", got)
	}
	if got := testutil.ToFloat64(m.AssertionFailureVec().WithLabelValues("unknown")); got < 1 {
		t.Fatalf("assertion failures = %v", got)
	}
}

func TestNilScenarioMetricsAreSafe(t *testing.T) {
	var m *ScenarioMetrics
	m.ObserveStep("fund", nil, time.Second)
	m.IncAssertionFailure("totalSupply")
	m.ObserveRound(1, 1, 1, 1)
	if m.StepCounterVec() != nil {
		t.Fatalf("expected nil vector")
	}
}

func TestPushGroupsByRunID(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	Scenario().ObserveStep("list", nil, time.Millisecond)
	if err := Push(context.Background(), server.URL, "firstdeposit", "run-1"); err != nil {
		t.Fatalf("push: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Fatalf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/firstdeposit/run_id/run-1" {
		t.Fatalf("path = %s", path)
	}
}

func TestPushWithoutGatewayIsNoop(t *testing.T) {
	if err := Push(context.Background(), " ", "firstdeposit", "run-1"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := Push(context.Background(), "http://127.0.0.1:1", "", ""); err == nil {
		t.Fatalf("expected missing job error")
	}
}
