package simulation

import (
	"context"
	"testing"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/scheduler"
	"github.com/example/replica_sim/topology"
	"github.com/example/replica_sim/validator"
	"github.com/example/replica_sim/workload"
)

// mesh links every pair of n nodes with variable latency in [lo, hi].
func mesh(n int, level core.Consistency, lo, hi float64) *topology.Topology {
	topo := &topology.Topology{}
	for i := 0; i < n; i++ {
		topo.Nodes = append(topo.Nodes, topology.Node{Consistency: level})
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			topo.Links = append(topo.Links, topology.Link{
				Source:     topology.At(i),
				Target:     topology.At(j),
				Connection: core.ConnectionVariable,
				Latency:    topology.Between(lo, hi),
			})
		}
	}
	return topo
}

func validate(t *testing.T, logs map[string][]core.LogEntry) *validator.Report {
	t.Helper()
	rep, err := validator.Validate(context.Background(), logs)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return rep
}

func TestRebroadcastMeshHasForksWithoutDuplicates(t *testing.T) {
	for _, level := range []core.Consistency{core.ConsistencyEventual, core.ConsistencyCausal} {
		t.Run(string(level), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MaxSimTime = 3000
			cfg.Users = 6
			cfg.Objects = 1
			cfg.AccessMean = 100
			cfg.AccessStddev = 20
			cfg.WriteProb = 1
			cfg.SwitchProb = 0
			s := newSim(t, mesh(6, level, 50, 300), cfg)
			res, err := s.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			rep := validate(t, res.Logs)
			for _, id := range rep.Replicas {
				m := rep.Logs[id]
				if m.Duplicates != 0 {
					t.Fatalf("%s: duplicates = %d", id, m.Duplicates)
				}
				if m.Forks == 0 {
					t.Fatalf("%s: concurrent writers produced no forks", id)
				}
				if m.Entries != len(res.Versions) {
					t.Fatalf("%s: holds %d of %d versions after drain", id, m.Entries, len(res.Versions))
				}
			}
			t.Logf("%s: monoincr errors = %d across %d versions", level, rep.Total.MonotonicErrors, len(res.Versions))

			if level != core.ConsistencyCausal {
				return
			}
			// Causal delivery stores a parent before its child, so every
			// monoincr error is between concurrent versions.
			for id, log := range res.Logs {
				at := make(map[core.VersionID]int, len(log))
				for i, e := range log {
					at[e.Version] = i
				}
				for i, e := range log {
					if e.Parent == core.NoVersion {
						continue
					}
					if p, ok := at[e.Parent]; !ok || p > i {
						t.Fatalf("%s: version %d stored before its parent %d", id, e.Version, e.Parent)
					}
				}
			}
		})
	}
}

func TestConcurrentForksArriveOutOfOrder(t *testing.T) {
	topo := &topology.Topology{
		Nodes: []topology.Node{
			{Consistency: core.ConsistencyEventual},
			{Consistency: core.ConsistencyEventual},
			{Consistency: core.ConsistencyEventual},
		},
		Links: []topology.Link{
			{Source: topology.At(0), Target: topology.At(1), Latency: topology.Fixed(50)},
			{Source: topology.At(1), Target: topology.At(2), Latency: topology.Fixed(10)},
			{Source: topology.At(0), Target: topology.At(2), Latency: topology.Fixed(10)},
		},
	}
	// r0 and r2 fork a.1 at the same instant; r1 and r2 see a.3 before a.2.
	s := newSim(t, topo, quietConfig(), WithWorkload(trace(t,
		workload.TraceEntry{Time: 0, Replica: "r0", Object: "a"},
		workload.TraceEntry{Time: 100, Replica: "r0", Object: "a"},
		workload.TraceEntry{Time: 100, Replica: "r2", Object: "a"},
	)))
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rep := validate(t, res.Logs)

	tests := []struct {
		replica string
		order   []core.VersionID
		mono    int
	}{
		{"r0", []core.VersionID{1, 2, 3}, 0},
		{"r1", []core.VersionID{1, 3, 2}, 1},
		{"r2", []core.VersionID{1, 3, 2}, 1},
	}
	for _, tt := range tests {
		log := res.Logs[tt.replica]
		if len(log) != len(tt.order) {
			t.Fatalf("%s log = %+v", tt.replica, log)
		}
		for i, id := range tt.order {
			if log[i].Version != id {
				t.Fatalf("%s log = %+v, want order %v", tt.replica, log, tt.order)
			}
		}
		m := rep.Logs[tt.replica]
		if m.MonotonicErrors != tt.mono || m.Duplicates != 0 || m.Forks != 1 || m.Missing != 0 {
			t.Fatalf("%s metrics = %+v", tt.replica, m)
		}
	}
}

func TestDepartureWhileMessageInFlight(t *testing.T) {
	s := newSim(t, line(3, core.ConsistencyEventual, 100), quietConfig(), WithWorkload(trace(t,
		workload.TraceEntry{Time: 0, Replica: "r0", Object: "a"},
	)))
	err := s.Schedule(50, scheduler.EventFunc(func(float64) {
		if err := s.RemoveReplica("r1"); err != nil {
			t.Errorf("RemoveReplica: %v", err)
		}
	}))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Logs["r0"]) != 1 || len(res.Logs["r1"]) != 0 || len(res.Logs["r2"]) != 0 {
		t.Fatalf("logs = %+v", res.Logs)
	}
	if res.Messages.Sent != 1 || res.Messages.Delivered != 0 || res.Messages.Dropped != 1 {
		t.Fatalf("tally = %+v", res.Messages)
	}
}
