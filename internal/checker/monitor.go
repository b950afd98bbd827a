package checker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/jdillenkofer/fixity/internal/lifecycle"
	"github.com/jdillenkofer/fixity/internal/task"
	"github.com/jdillenkofer/fixity/internal/verifier"
	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeCounter reports how many ledger records currently hold each outcome.
type OutcomeCounter interface {
	CountByOutcome(ctx context.Context) (map[fixity.Outcome]int64, error)
}

// Monitor owns the checker metrics. The ledger gauge is refreshed by a
// background task while the monitor is running.
type Monitor struct {
	*lifecycle.ValidatedLifecycle
	registerer                 prometheus.Registerer
	counter                    OutcomeCounter
	measuringInterval          time.Duration
	verifierOutcomesCounter    *prometheus.CounterVec
	verifierDurationHistogram  prometheus.Histogram
	ledgerRecordsGauge         *prometheus.GaugeVec
	runsCounter                *prometheus.CounterVec
	metricsMeasuringTaskHandle *task.TaskHandle
}

var _ lifecycle.Manager = (*Monitor)(nil)

func NewMonitor(counter OutcomeCounter, registerer prometheus.Registerer, measuringInterval time.Duration) (*Monitor, error) {
	verifierOutcomesCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixity",
			Subsystem: "verifier",
			Name:      "outcomes_total",
			Help:      "No of verifications partitioned by outcome",
		},
		[]string{"outcome"},
	)

	verifierDurationHistogram := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fixity",
			Subsystem: "verifier",
			Name:      "duration_seconds",
			Help:      "Time spent reading and hashing a single bitstream",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	ledgerRecordsGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fixity",
			Subsystem: "ledger",
			Name:      "records",
			Help:      "No of checksum records partitioned by last outcome",
		},
		[]string{"outcome"},
	)

	runsCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fixity",
			Name:      "runs_total",
			Help:      "No of check runs partitioned by final state",
		},
		[]string{"state"},
	)

	lifecycle, err := lifecycle.NewValidatedLifecycle("Monitor")
	if err != nil {
		return nil, err
	}
	if measuringInterval <= 0 {
		measuringInterval = 30 * time.Second
	}

	return &Monitor{
		ValidatedLifecycle:        lifecycle,
		registerer:                registerer,
		counter:                   counter,
		measuringInterval:         measuringInterval,
		verifierOutcomesCounter:   verifierOutcomesCounter,
		verifierDurationHistogram: verifierDurationHistogram,
		ledgerRecordsGauge:        ledgerRecordsGauge,
		runsCounter:               runsCounter,
	}, nil
}

func (m *Monitor) measureMetrics(ctx context.Context) {
	counts, err := m.counter.CountByOutcome(ctx)
	if err != nil {
		slog.Warn(fmt.Sprintf("Could not count checksum records: %s", err))
		return
	}
	for _, outcome := range fixity.Outcomes {
		m.ledgerRecordsGauge.With(prometheus.Labels{"outcome": string(outcome)}).Set(float64(counts[outcome]))
	}
}

func (m *Monitor) measureMetricsLoop(cancelMetricsMeasuring *atomic.Bool) {
	ctx := context.Background()
	for {
		m.measureMetrics(ctx)
		if !task.SleepUnlessCancelled(cancelMetricsMeasuring, m.measuringInterval) {
			return
		}
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	if err := m.ValidatedLifecycle.Start(ctx); err != nil {
		return err
	}
	m.registerer.MustRegister(m.verifierOutcomesCounter)
	m.registerer.MustRegister(m.verifierDurationHistogram)
	m.registerer.MustRegister(m.ledgerRecordsGauge)
	m.registerer.MustRegister(m.runsCounter)

	if m.counter != nil {
		m.metricsMeasuringTaskHandle = task.Start(func(cancelTask *atomic.Bool) {
			m.measureMetricsLoop(cancelTask)
		})
	}
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	if err := m.ValidatedLifecycle.Stop(ctx); err != nil {
		return err
	}

	m.registerer.Unregister(m.runsCounter)
	m.registerer.Unregister(m.ledgerRecordsGauge)
	m.registerer.Unregister(m.verifierDurationHistogram)
	m.registerer.Unregister(m.verifierOutcomesCounter)

	if m.metricsMeasuringTaskHandle != nil && !m.metricsMeasuringTaskHandle.IsCancelled() {
		m.metricsMeasuringTaskHandle.Cancel()
		joinedWithTimeout := m.metricsMeasuringTaskHandle.JoinWithTimeout(30 * time.Second)
		if joinedWithTimeout {
			slog.Debug("Monitor.metricsMeasuringTaskHandle joined with timeout of 30s")
		} else {
			slog.Debug("Monitor.metricsMeasuringTaskHandle joined without timeout")
		}
	}
	return nil
}

// ObserveRun counts a finished run by its final state.
func (m *Monitor) ObserveRun(report *Report) {
	m.runsCounter.With(prometheus.Labels{"state": string(report.State)}).Inc()
}

// WrapVerifier returns a verifier that counts outcomes and times each verification.
func (m *Monitor) WrapVerifier(inner verifier.Verifier) verifier.Verifier {
	return &prometheusVerifierMiddleware{monitor: m, inner: inner}
}

type prometheusVerifierMiddleware struct {
	monitor *Monitor
	inner   verifier.Verifier
}

var _ verifier.Verifier = (*prometheusVerifierMiddleware)(nil)

func (pvm *prometheusVerifierMiddleware) Verify(ctx context.Context, id fixity.BitstreamId) (*fixity.Verification, error) {
	start := time.Now()
	verification, err := pvm.inner.Verify(ctx, id)
	if err != nil {
		return nil, err
	}
	pvm.monitor.verifierDurationHistogram.Observe(time.Since(start).Seconds())
	pvm.monitor.verifierOutcomesCounter.With(prometheus.Labels{"outcome": string(verification.Outcome)}).Inc()
	return verification, nil
}
