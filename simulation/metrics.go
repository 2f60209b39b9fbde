package simulation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/hooks"
)

// Metrics holds the prometheus collectors of one run. Each run owns its
// registry so batch experiments do not share counters.
type Metrics struct {
	registry *prometheus.Registry
	total    func() int

	messagesSent      *prometheus.CounterVec
	messagesDelivered *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	versionsStored    *prometheus.CounterVec
	commits           prometheus.Counter
	replicated        prometheus.Counter
	replicationDelay  prometheus.Histogram
	deliveryDelay     prometheus.Histogram
	pendingEvents     prometheus.Gauge
	runDuration       prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry. total reports the
// replica count that marks full replication.
func NewMetrics(runID string, total func() int) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"run": runID}, reg))
	delayBuckets := prometheus.ExponentialBuckets(10, 2, 14)

	return &Metrics{
		registry: reg,
		total:    total,
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_sim_messages_sent_total",
			Help: "Messages scheduled for delivery",
		}, []string{"class"}),
		messagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_sim_messages_delivered_total",
			Help: "Messages handed to their target replica",
		}, []string{"class"}),
		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_sim_messages_dropped_total",
			Help: "Messages or versions discarded",
		}, []string{"reason"}),
		versionsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replica_sim_versions_stored_total",
			Help: "Versions inserted into replica logs",
		}, []string{"origin"}),
		commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "replica_sim_commits_total",
			Help: "Strong writes that reached their ack quorum",
		}),
		replicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "replica_sim_versions_replicated_total",
			Help: "Versions stored by every replica",
		}),
		replicationDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "replica_sim_replication_latency",
			Help:    "Virtual time from write to full replication",
			Buckets: delayBuckets,
		}),
		deliveryDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "replica_sim_message_delay",
			Help:    "Scheduled delay of sent messages",
			Buckets: delayBuckets,
		}),
		pendingEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replica_sim_pending_events",
			Help: "Events queued on the scheduler at the last frame",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "replica_sim_run_seconds",
			Help: "Wall-clock duration of the run",
		}),
	}
}

// Registry exposes the run registry, e.g. to promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Bundle returns the hooks that feed the collectors.
func (m *Metrics) Bundle() hooks.HookBundle {
	return hooks.HookBundle{
		AfterSend: []hooks.AfterSendHook{func(ctx *hooks.MessageContext) error {
			m.messagesSent.WithLabelValues(string(ctx.Message.Class)).Inc()
			m.deliveryDelay.Observe(ctx.Message.Delay)
			return nil
		}},
		Deliver: []hooks.DeliverHook{func(ctx *hooks.DeliverContext) error {
			m.messagesDelivered.WithLabelValues(string(ctx.Message.Class)).Inc()
			return nil
		}},
		Store: []hooks.StoreHook{func(ctx *hooks.StoreContext) error {
			origin := "remote"
			if ctx.Local {
				origin = "local"
			}
			m.versionsStored.WithLabelValues(origin).Inc()
			if completes(ctx.State, ctx.Time, m.total()) {
				m.replicated.Inc()
				m.replicationDelay.Observe(ctx.State.ReplicatedAt - ctx.Version.UpdatedAt)
			}
			return nil
		}},
		Drop: []hooks.DropHook{func(ctx *hooks.DropContext) error {
			m.messagesDropped.WithLabelValues(dropReason(ctx.Reason)).Inc()
			return nil
		}},
	}
}

// completes reports whether the store that produced st made the version fully
// replicated.
func completes(st core.VersionState, now float64, total int) bool {
	return st.Replicated && st.ReplicaCount == total && st.ReplicatedAt == now
}

// dropReason keeps label cardinality bounded.
func dropReason(reason string) string {
	switch reason {
	case "duplicate", "departed", "unknown payload":
		return reason
	default:
		return "send failed"
	}
}

func (m *Metrics) observeCommit() {
	if m != nil {
		m.commits.Inc()
	}
}

func (m *Metrics) observePending(n int) {
	if m != nil {
		m.pendingEvents.Set(float64(n))
	}
}

func (m *Metrics) observeRun(seconds float64) {
	if m != nil {
		m.runDuration.Set(seconds)
	}
}
