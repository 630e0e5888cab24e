package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ScenarioMetrics records the progress and outcome of a first-deposit run.
type ScenarioMetrics struct {
	steps             *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	assertionFailures *prometheus.CounterVec
	attackerBalance   *prometheus.GaugeVec
	stolen            *prometheus.GaugeVec
	victimShares      *prometheus.GaugeVec
}

var (
	scenarioOnce     sync.Once
	scenarioRegistry *ScenarioMetrics
)

// Scenario returns the process-wide scenario metrics registered with the
// default Prometheus registry.
func Scenario() *ScenarioMetrics {
	scenarioOnce.Do(func() {
		scenarioRegistry = &ScenarioMetrics{
			steps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "firstdeposit_steps_total",
				Help: "Count of scenario steps by step name and outcome.",
			}, []string{"step", "outcome"}),
			stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "firstdeposit_step_duration_seconds",
				Help:    "Wall-clock duration of each scenario step.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			}, []string{"step"}),
			assertionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "firstdeposit_assertion_failures_total",
				Help: "Count of failed scenario assertions by quantity.",
			}, []string{"quantity"}),
			attackerBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "firstdeposit_attacker_balance",
				Help: "Attacker underlying balance in token units after each round.",
			}, []string{"round"}),
			stolen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "firstdeposit_stolen_amount",
				Help: "Underlying token units taken from the victim in each round.",
			}, []string{"round"}),
			victimShares: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "firstdeposit_victim_shares",
				Help: "Market shares minted to the victim in each round.",
			}, []string{"round"}),
		}
		prometheus.MustRegister(
			scenarioRegistry.steps,
			scenarioRegistry.stepDuration,
			scenarioRegistry.assertionFailures,
			scenarioRegistry.attackerBalance,
			scenarioRegistry.stolen,
			scenarioRegistry.victimShares,
		)
	})
	return scenarioRegistry
}

func (m *ScenarioMetrics) ObserveStep(step string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if step == "" {
		step = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.steps.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

func (m *ScenarioMetrics) IncAssertionFailure(quantity string) {
	if m == nil {
		return
	}
	if quantity == "" {
		quantity = "unknown"
	}
	m.assertionFailures.WithLabelValues(quantity).Inc()
}

// ObserveRound records the balances reported at the end of a round.
func (m *ScenarioMetrics) ObserveRound(round int, attackerBalance, stolen, victimShares float64) {
	if m == nil {
		return
	}
	label := strconv.Itoa(round)
	m.attackerBalance.WithLabelValues(label).Set(attackerBalance)
	m.stolen.WithLabelValues(label).Set(stolen)
	m.victimShares.WithLabelValues(label).Set(victimShares)
}

// StepCounterVec exposes the step counter for assertions in tests.
func (m *ScenarioMetrics) StepCounterVec() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.steps
}

func (m *ScenarioMetrics) AssertionFailureVec() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.assertionFailures
}

func (m *ScenarioMetrics) AttackerBalanceVec() *prometheus.GaugeVec {
	if m == nil {
		return nil
	}
	return m.attackerBalance
}

func (m *ScenarioMetrics) StolenVec() *prometheus.GaugeVec {
	if m == nil {
		return nil
	}
	return m.stolen
}

// Push sends every collector in the default registry to a Prometheus
// Pushgateway under job, grouped by run ID. An empty gateway URL is a no-op.
func Push(ctx context.Context, gatewayURL, job, runID string) error {
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return nil
	}
	if strings.TrimSpace(job) == "" {
		return fmt.Errorf("metrics: push job name required")
	}
	pusher := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", gatewayURL, err)
	}
	return nil
}
