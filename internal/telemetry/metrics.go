// Package telemetry exposes the ingester's own health: Prometheus self-metrics
// and a small status server.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"node-rewards-ingester/internal/day"
)

const namespace = "node_rewards_ingester"

// Metrics holds the self-metrics registry.
type Metrics struct {
	registry *prometheus.Registry

	DayRuns         *prometheus.CounterVec // trigger, outcome
	SamplesPushed   prometheus.Counter
	FetchDuration   *prometheus.HistogramVec // canister
	PushDuration    prometheus.Histogram
	LastSuccessDay  prometheus.Gauge
	LastRunUnix     prometheus.Gauge
	StoreReady      prometheus.Gauge
	BackfillPending prometheus.Gauge

	mu     sync.RWMutex
	recent []RunStatus
	ready  bool
	last   day.Day
}

// RunStatus is the in-memory view of a finished day cycle.
type RunStatus struct {
	RunID      string        `json:"run_id"`
	Day        day.Day       `json:"day"`
	Trigger    string        `json:"trigger"`
	Outcome    string        `json:"outcome"`
	Samples    int           `json:"samples"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

const recentRuns = 50

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		DayRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "day_runs_total",
				Help:      "Day cycles by trigger and outcome.",
			},
			[]string{"trigger", "outcome"},
		),
		SamplesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_pushed_total",
			Help:      "Samples accepted by VictoriaMetrics.",
		}),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Rewards canister query latency.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"canister"},
		),
		PushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "VictoriaMetrics import latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSuccessDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pushed_day_timestamp_seconds",
			Help:      "Noon of the most recent day pushed successfully.",
		}),
		LastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Completion time of the last day cycle.",
		}),
		StoreReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_ready",
			Help:      "Whether VictoriaMetrics answered its readiness check (1=yes, 0=no).",
		}),
		BackfillPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backfill_pending_days",
			Help:      "Days left in the running backfill.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DayRuns,
		m.SamplesPushed,
		m.FetchDuration,
		m.PushDuration,
		m.LastSuccessDay,
		m.LastRunUnix,
		m.StoreReady,
		m.BackfillPending,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished day cycle.
func (m *Metrics) ObserveRun(st RunStatus, pushed bool) {
	if m == nil {
		return
	}
	m.DayRuns.WithLabelValues(st.Trigger, st.Outcome).Inc()
	m.LastRunUnix.Set(float64(st.FinishedAt.Unix()))

	m.mu.Lock()
	defer m.mu.Unlock()
	if pushed {
		m.SamplesPushed.Add(float64(st.Samples))
		if m.last.IsZero() || st.Day.After(m.last) {
			m.last = st.Day
			m.LastSuccessDay.Set(float64(st.Day.Noon().Unix()))
		}
	}
	m.recent = append(m.recent, st)
	if len(m.recent) > recentRuns {
		m.recent = m.recent[len(m.recent)-recentRuns:]
	}
}

// ObserveFetch records one canister query.
func (m *Metrics) ObserveFetch(canister string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(canister).Observe(elapsed.Seconds())
}

// ObservePush records one import request.
func (m *Metrics) ObservePush(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PushDuration.Observe(elapsed.Seconds())
}

// SetReady flips the store readiness gauge.
func (m *Metrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
	if ready {
		m.StoreReady.Set(1)
		return
	}
	m.StoreReady.Set(0)
}

// SetBackfillPending reports the remaining backfill days.
func (m *Metrics) SetBackfillPending(n int) {
	if m == nil {
		return
	}
	m.BackfillPending.Set(float64(n))
}

// Snapshot is the /status payload.
type Snapshot struct {
	Ready          bool        `json:"ready"`
	LastPushedDay  *day.Day    `json:"last_pushed_day,omitempty"`
	RecentRuns     []RunStatus `json:"recent_runs"`
	GeneratedAtUTC time.Time   `json:"generated_at"`
}

// Snapshot copies the in-memory state, newest run first.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]RunStatus, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		runs = append(runs, m.recent[i])
	}
	snap := Snapshot{Ready: m.ready, RecentRuns: runs, GeneratedAtUTC: time.Now().UTC()}
	if !m.last.IsZero() {
		last := m.last
		snap.LastPushedDay = &last
	}
	return snap
}

// RestoreLastPushed seeds the last pushed day from the ledger after a restart.
func (m *Metrics) RestoreLastPushed(d day.Day) {
	if m == nil || d.IsZero() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last.IsZero() || d.After(m.last) {
		m.last = d
		m.LastSuccessDay.Set(float64(d.Noon().Unix()))
	}
}
