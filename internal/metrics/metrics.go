package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job name runs are grouped under.
const Job = "rds_cluster_dns"

// Result label values.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds the counters of one run on a private registry so nothing
// leaks between runs or tests.
type Metrics struct {
	registry *prometheus.Registry

	TasksTotal          *prometheus.CounterVec
	MembersDroppedTotal prometheus.Counter
	RecordsTotal        prometheus.Counter
	ChangesTotal        *prometheus.CounterVec
	SyncDuration        *prometheus.HistogramVec
}

// New creates and registers the run metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcd_tasks_total",
				Help: "Reconciliation tasks processed by result",
			},
			[]string{"result"},
		),
		MembersDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rcd_members_dropped_total",
				Help: "Cluster members left out because their address could not be resolved",
			},
		),
		RecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rcd_records_total",
				Help: "DNS records synthesized",
			},
		),
		ChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcd_changes_total",
				Help: "DNS change sets by provider and result",
			},
			[]string{"provider", "result"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rcd_sync_duration_seconds",
				Help:    "Time from change submission until the provider reports it in sync",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
			},
			[]string{"provider"},
		),
	}

	m.registry.MustRegister(
		m.TasksTotal,
		m.MembersDroppedTotal,
		m.RecordsTotal,
		m.ChangesTotal,
		m.SyncDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSync records how long a change took to become in sync.
func (m *Metrics) ObserveSync(provider string, d time.Duration) {
	m.SyncDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// Push sends every metric of the run to a Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, Job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
