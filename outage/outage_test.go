package outage

import (
	"context"
	"math/rand"
	"testing"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/network"
	"github.com/example/replica_sim/scheduler"
)

type stubRuntime struct {
	sched *scheduler.Scheduler
	rnd   *rand.Rand
}

func (rt *stubRuntime) Now() float64 { return rt.sched.Now() }
func (rt *stubRuntime) Schedule(delay float64, ev scheduler.Event) error {
	return rt.sched.Schedule(delay, ev)
}
func (rt *stubRuntime) Rand() *rand.Rand        { return rt.rnd }
func (rt *stubRuntime) Logger() *logging.Logger { return logging.NewNop() }

func buildNetwork(t *testing.T) *network.Network {
	t.Helper()
	net := network.New(nil, 1)
	net.AddNode("h1", core.LocationHome)
	net.AddNode("h2", core.LocationHome)
	net.AddNode("w1", core.LocationWork)
	spec := network.Spec{Kind: core.ConnectionConstant, Latency: 5}
	for _, pair := range [][2]string{{"h1", "h2"}, {"h1", "w1"}, {"h2", "w1"}} {
		if _, err := net.Add(pair[0], pair[1], true, spec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return net
}

func TestAllocateGroups(t *testing.T) {
	net := buildNetwork(t)
	cases := []struct {
		partition Partition
		groups    int
		conns     int
	}{
		{PartitionWide, 2, 4},  // home->work x2, work->home x2
		{PartitionLocal, 1, 2}, // h1<->h2
		{PartitionBoth, 3, 6},
		{PartitionNode, 3, 6},
	}
	for _, tc := range cases {
		gen, err := Allocate(net, Config{Partition: tc.partition})
		if err != nil {
			t.Fatalf("%s: Allocate: %v", tc.partition, err)
		}
		total := 0
		for _, g := range gen.Groups() {
			total += len(g.Connections())
		}
		if len(gen.Groups()) != tc.groups || total != tc.conns {
			t.Errorf("%s: got %d groups with %d connections, want %d and %d",
				tc.partition, len(gen.Groups()), total, tc.groups, tc.conns)
		}
	}

	if _, err := Allocate(net, Config{Partition: "leader"}); err == nil {
		t.Fatalf("expected error for unsupported partition")
	}
	if _, err := Allocate(net, Config{Prob: 1.5}); err == nil {
		t.Fatalf("expected error for bad probability")
	}
}

func TestCertainOutageTakesLinksDown(t *testing.T) {
	net := buildNetwork(t)
	gen, err := Allocate(net, Config{
		Prob:         1,
		OutageMean:   100,
		OnlineMean:   20,
		OnlineStddev: 0,
		Partition:    PartitionLocal,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rt := &stubRuntime{
		sched: scheduler.New(scheduler.DropInFlight, scheduler.WithLogger(logging.NewNop())),
		rnd:   rand.New(rand.NewSource(3)),
	}
	if err := gen.Start(rt); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rt.sched.Run(context.Background(), 50); err != nil {
		t.Fatalf("Run: %v", err)
	}

	c, _ := net.Connection("h1", "h2")
	if c.Online() {
		t.Fatalf("local link should be offline after the first period")
	}
	if _, err := c.GetLatency(); err == nil {
		t.Fatalf("offline link should refuse latency")
	}
	w, _ := net.Connection("h1", "w1")
	if !w.Online() {
		t.Fatalf("wide link must not be touched by a local partition")
	}

	st := gen.Stats(50)
	if st.Outages != 1 || st.Downtime != 30 {
		t.Fatalf("unexpected stats %+v", st)
	}

	gen.Restore(60)
	if !c.Online() {
		t.Fatalf("Restore should bring links back")
	}
}
