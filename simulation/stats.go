package simulation

import (
	"fmt"
	"io"
	"math"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/hooks"
	"github.com/example/replica_sim/visual"
)

// GlobalStats aggregates a run.
type GlobalStats struct {
	Replicas        int     `json:"replicas"`
	Departed        int     `json:"departed"`
	Objects         int     `json:"objects"`
	Versions        int     `json:"versions"`
	FullyReplicated int     `json:"fullyReplicated"`
	LatencyMean     float64 `json:"latencyMean"`
	LatencyStddev   float64 `json:"latencyStddev"`
	Pending         int     `json:"pending"`
}

// Stats holds per-replica and global run statistics.
type Stats struct {
	Global     GlobalStats                    `json:"global"`
	PerReplica map[string]visual.ReplicaStats `json:"perReplica"`
	order      []string
}

// latencyTracker collects how long remote versions took to reach each replica.
type latencyTracker struct {
	samples map[string][]float64
}

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{samples: make(map[string][]float64)}
}

func (l *latencyTracker) bundle() hooks.HookBundle {
	return hooks.HookBundle{
		Store: []hooks.StoreHook{func(ctx *hooks.StoreContext) error {
			if !ctx.Local {
				l.samples[ctx.Replica] = append(l.samples[ctx.Replica], ctx.Time-ctx.Version.UpdatedAt)
			}
			return nil
		}},
	}
}

func (l *latencyTracker) all() []float64 {
	var out []float64
	for _, xs := range l.samples {
		out = append(out, xs...)
	}
	return out
}

func meanStddev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// CollectStats derives statistics from the current replica state.
func (s *Simulation) CollectStats() *Stats {
	states := s.registry.States()
	replicated := make(map[core.VersionID]bool, len(states))
	for _, st := range states {
		replicated[st.Version.ID] = st.Replicated
	}
	names := s.registry.Names()

	out := &Stats{
		PerReplica: make(map[string]visual.ReplicaStats, len(s.order)),
		order:      append([]string(nil), s.order...),
	}
	g := &out.Global
	g.Replicas = len(s.order)
	g.Objects = len(names)
	g.Versions = len(states)
	g.Pending = s.sched.Pending()
	g.LatencyMean, g.LatencyStddev = meanStddev(s.latency.all())
	for _, st := range states {
		if st.Replicated {
			g.FullyReplicated++
		}
	}

	for _, id := range s.order {
		r := s.replicas[id]
		if r.Departed() {
			g.Departed++
		}
		rs := visual.ReplicaStats{Versions: r.Len()}
		for _, v := range r.Log() {
			if replicated[v.ID] {
				rs.FullyReplicated++
			}
		}
		if len(names) > 0 {
			stale := 0
			for _, name := range names {
				want, _ := s.registry.Latest(name)
				have, ok := r.Latest(name)
				if !ok || have.ID != want.ID {
					stale++
				}
			}
			rs.Staleness = 100 * float64(stale) / float64(len(names))
		}
		rs.LatencyMean, rs.LatencyStddev = meanStddev(s.latency.samples[id])
		out.PerReplica[id] = rs
	}
	return out
}

// Print writes the statistics in a human readable form.
func (st *Stats) Print(w io.Writer) {
	if st == nil {
		fmt.Fprintln(w, "No stats available")
		return
	}
	g := st.Global
	fmt.Fprintln(w, "=== Global Statistics ===")
	fmt.Fprintf(w, "Replicas: %d (%d departed)\n", g.Replicas, g.Departed)
	fmt.Fprintf(w, "Objects: %d\n", g.Objects)
	fmt.Fprintf(w, "Versions: %d\n", g.Versions)
	fmt.Fprintf(w, "Fully Replicated: %d\n", g.FullyReplicated)
	fmt.Fprintf(w, "Replication Latency: mean=%.2f stddev=%.2f\n", g.LatencyMean, g.LatencyStddev)
	fmt.Fprintf(w, "Pending Events: %d\n", g.Pending)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Replica Statistics ===")
	for _, id := range st.order {
		rs, ok := st.PerReplica[id]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "Replica %s: Versions=%d, Staleness=%.2f%%, Latency=%.2f±%.2f, FullyReplicated=%d\n",
			id, rs.Versions, rs.Staleness, rs.LatencyMean, rs.LatencyStddev, rs.FullyReplicated)
	}
}

// Print writes the message tally.
func (t Tally) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Message Statistics ===")
	fmt.Fprintf(w, "Sent: %d (acks %d)\n", t.Sent, t.Acks)
	fmt.Fprintf(w, "Delivered: %d\n", t.Delivered)
	fmt.Fprintf(w, "Duplicates: %d\n", t.Duplicates)
	fmt.Fprintf(w, "Dropped: %d\n", t.Dropped)
	fmt.Fprintf(w, "Commits: %d\n", t.Commits)
}
