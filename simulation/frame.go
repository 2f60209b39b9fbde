package simulation

import (
	"github.com/example/replica_sim/replica"
	"github.com/example/replica_sim/visual"
)

// Snapshot returns the current state of the run as a frame.
func (s *Simulation) Snapshot() *visual.Frame {
	return s.frame(false)
}

func (s *Simulation) frame(final bool) *visual.Frame {
	f := &visual.Frame{
		RunID:    s.ID,
		Time:     s.Now(),
		Final:    final,
		Replicas: make([]replica.Snapshot, 0, len(s.order)),
		Versions: s.registry.States(),
		Stats:    s.CollectStats().PerReplica,
	}
	for _, id := range s.order {
		f.Replicas = append(f.Replicas, s.replicas[id].Snapshot())
	}
	for _, c := range s.net.Connections() {
		f.Links = append(f.Links, visual.LinkSnapshot{
			Source:  c.Source,
			Target:  c.Target,
			Kind:    c.Kind,
			Area:    c.Area(),
			Online:  c.Online(),
			Latency: c.LatencyRange(),
		})
	}
	return f
}
