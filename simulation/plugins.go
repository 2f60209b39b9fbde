package simulation

import (
	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/hooks"
	"github.com/example/replica_sim/logging"
)

// Built-in plugin names accepted in Config.Plugins.
const (
	PluginMetrics = "metrics"
	PluginTrace   = "trace"
	// PluginVerbose is replica-scoped: list it under a topology node's plugins.
	PluginVerbose = "verbose"
)

// Tally counts message outcomes for the run summary.
type Tally struct {
	Sent       int64 `json:"sent"`
	Acks       int64 `json:"acks"`
	Delivered  int64 `json:"delivered"`
	Duplicates int64 `json:"duplicates"`
	Dropped    int64 `json:"dropped"`
	Commits    int64 `json:"commits"`
}

func (t *Tally) bundle() hooks.HookBundle {
	return hooks.HookBundle{
		AfterSend: []hooks.AfterSendHook{func(ctx *hooks.MessageContext) error {
			t.Sent++
			if ctx.Message.IsAck() {
				t.Acks++
			}
			return nil
		}},
		Deliver: []hooks.DeliverHook{func(*hooks.DeliverContext) error {
			t.Delivered++
			return nil
		}},
		Drop: []hooks.DropHook{func(ctx *hooks.DropContext) error {
			if ctx.Reason == "duplicate" {
				t.Duplicates++
			} else {
				t.Dropped++
			}
			return nil
		}},
	}
}

// Tracer records replication events in the order they happen.
type Tracer struct {
	events []core.Event
}

// Events returns the recorded trace.
func (t *Tracer) Events() []core.Event {
	out := make([]core.Event, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Tracer) record(e core.Event) {
	e.Sequence = int64(len(t.events)) + 1
	t.events = append(t.events, e)
}

// Bundle returns the hooks that feed the trace.
func (t *Tracer) Bundle() hooks.HookBundle {
	return hooks.HookBundle{
		AfterSend: []hooks.AfterSendHook{func(ctx *hooks.MessageContext) error {
			m := ctx.Message
			e := core.Event{Kind: core.EventSent, Time: ctx.Time, Replica: m.Source, Peer: m.Target, MessageID: m.ID, Class: m.Class}
			if v, ok := m.Version(); ok {
				e.Version = v.ID
			}
			t.record(e)
			return nil
		}},
		Deliver: []hooks.DeliverHook{func(ctx *hooks.DeliverContext) error {
			m := ctx.Message
			e := core.Event{Kind: core.EventDelivered, Time: ctx.Time, Replica: m.Target, Peer: m.Source, MessageID: m.ID, Class: m.Class}
			if v, ok := m.Version(); ok {
				e.Version = v.ID
			}
			t.record(e)
			return nil
		}},
		Store: []hooks.StoreHook{func(ctx *hooks.StoreContext) error {
			kind := core.EventStored
			if ctx.Local {
				kind = core.EventForked
				if ctx.Version.IsRoot() {
					kind = core.EventCreated
				}
			}
			t.record(core.Event{Kind: kind, Time: ctx.Time, Replica: ctx.Replica, Version: ctx.Version.ID})
			return nil
		}},
		Drop: []hooks.DropHook{func(ctx *hooks.DropContext) error {
			kind := core.EventDropped
			if ctx.Reason == "duplicate" {
				kind = core.EventDuplicate
			}
			e := core.Event{Kind: kind, Time: ctx.Time, Replica: ctx.Replica, Reason: ctx.Reason}
			if m := ctx.Message; m != nil {
				e.Peer = m.Source
				e.MessageID = m.ID
				e.Class = m.Class
				if v, ok := m.Version(); ok {
					e.Version = v.ID
				}
			}
			t.record(e)
			return nil
		}},
	}
}

func (s *Simulation) registerPlugins() error {
	metricsDesc := hooks.PluginDescriptor{
		Name:        PluginMetrics,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "prometheus counters and histograms per run",
	}
	err := s.plugins.RegisterGlobal(PluginMetrics, metricsDesc, func(b *hooks.PluginBroker) error {
		s.metrics = NewMetrics(s.ID, s.registry.Total)
		b.RegisterBundle(metricsDesc, s.metrics.Bundle())
		return nil
	})
	if err != nil {
		return err
	}

	traceDesc := hooks.PluginDescriptor{
		Name:        PluginTrace,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "ordered replication event trace",
	}
	err = s.plugins.RegisterGlobal(PluginTrace, traceDesc, func(b *hooks.PluginBroker) error {
		s.tracer = &Tracer{}
		b.RegisterBundle(traceDesc, s.tracer.Bundle())
		return nil
	})
	if err != nil {
		return err
	}

	verboseDesc := hooks.PluginDescriptor{
		Name:        PluginVerbose,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "info-level log of one replica's deliveries, stores and drops",
	}
	return s.plugins.RegisterReplica(PluginVerbose, verboseDesc, func(id string, b *hooks.PluginBroker) error {
		desc := verboseDesc
		desc.Name = PluginVerbose + "." + id
		b.RegisterBundle(desc, verboseBundle(id, s.logger.Named(desc.Name)))
		return nil
	})
}

// verboseBundle logs what happens at replica id.
func verboseBundle(id string, log *logging.Logger) hooks.HookBundle {
	return hooks.HookBundle{
		Deliver: []hooks.DeliverHook{func(ctx *hooks.DeliverContext) error {
			if ctx.Message.Target == id {
				log.Infof("%.2f deliver %s", ctx.Time, ctx.Message)
			}
			return nil
		}},
		Store: []hooks.StoreHook{func(ctx *hooks.StoreContext) error {
			if ctx.Replica == id {
				log.Infof("%.2f stored %s, held by %d", ctx.Time, ctx.Version, ctx.State.ReplicaCount)
			}
			return nil
		}},
		Drop: []hooks.DropHook{func(ctx *hooks.DropContext) error {
			if ctx.Replica == id {
				log.Infof("%.2f drop: %s", ctx.Time, ctx.Reason)
			}
			return nil
		}},
	}
}
