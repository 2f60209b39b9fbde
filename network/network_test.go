package network

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/example/replica_sim/core"
)

func TestConstantLatencyScaledBySpeed(t *testing.T) {
	c, err := NewConnection("a", "b", Spec{Kind: core.ConnectionConstant, Latency: 40}, nil, 0.5)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := c.GetLatency()
		if err != nil || got != 20 {
			t.Fatalf("expected 20, got %v (%v)", got, err)
		}
	}
}

func TestVariableLatencyWithinRange(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	c, err := NewConnection("a", "b", Spec{Kind: core.ConnectionVariable, Range: [2]float64{30, 90}}, rnd, 2)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	for i := 0; i < 500; i++ {
		got, _ := c.GetLatency()
		if got < 60 || got > 180 {
			t.Fatalf("latency %v outside scaled range [60,180]", got)
		}
	}
}

func TestVariableLatencyDeterministicForSeed(t *testing.T) {
	draw := func() []float64 {
		rnd := rand.New(rand.NewSource(42))
		c, _ := NewConnection("a", "b", Spec{Kind: core.ConnectionVariable, Range: [2]float64{1, 100}}, rnd, 1)
		out := make([]float64, 10)
		for i := range out {
			out[i], _ = c.GetLatency()
		}
		return out
	}
	a, b := draw(), draw()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draws differ for the same seed at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestNormalLatencyNeverBelowOne(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	c, err := NewConnection("a", "b", Spec{Kind: core.ConnectionNormal, Range: [2]float64{2, 50}}, rnd, 1)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	for i := 0; i < 500; i++ {
		if got, _ := c.GetLatency(); got < 1 {
			t.Fatalf("normal latency %v below 1", got)
		}
	}
}

func TestOfflineConnection(t *testing.T) {
	c, _ := NewConnection("a", "b", Spec{Latency: 5}, nil, 1)
	c.Down()
	if _, err := c.GetLatency(); !errors.Is(err, core.ErrLinkOffline) {
		t.Fatalf("expected ErrLinkOffline, got %v", err)
	}
	c.Up()
	if _, err := c.GetLatency(); err != nil {
		t.Fatalf("online link failed: %v", err)
	}
}

func TestNewConnectionValidation(t *testing.T) {
	cases := []Spec{
		{Kind: core.ConnectionConstant, Latency: -1},
		{Kind: core.ConnectionVariable, Range: [2]float64{10, 5}},
		{Kind: core.ConnectionNormal, Range: [2]float64{0, 1}},
		{Kind: "warp"},
	}
	rnd := rand.New(rand.NewSource(1))
	for i, spec := range cases {
		if _, err := NewConnection("a", "b", spec, rnd, 1); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, spec)
		}
	}
	if _, err := NewConnection("a", "b", Spec{Kind: core.ConnectionVariable, Range: [2]float64{1, 2}}, nil, 1); err == nil {
		t.Fatalf("variable link without random source accepted")
	}
}

func newTestNetwork() *Network {
	n := New(rand.New(rand.NewSource(1)), 1)
	n.AddNode("r0", core.LocationHome)
	n.AddNode("r1", core.LocationHome)
	n.AddNode("r2", core.LocationCloud)
	return n
}

func TestNetworkAddDerivesArea(t *testing.T) {
	n := newTestNetwork()
	if _, err := n.Add("r0", "r1", true, Spec{Latency: 10}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := n.Add("r0", "r2", true, Spec{Kind: core.ConnectionVariable, Range: [2]float64{100, 200}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	c, ok := n.Connection("r1", "r0")
	if !ok || c.Area() != core.AreaLocal {
		t.Fatalf("expected local reverse link, got %v", c)
	}
	c, _ = n.Connection("r2", "r0")
	if c.Area() != core.AreaWide {
		t.Fatalf("expected wide link between home and cloud")
	}
	if got := len(n.Connections()); got != 4 {
		t.Fatalf("expected 4 directed links, got %d", got)
	}
	if got := len(n.FilterArea(core.AreaWide)); got != 2 {
		t.Fatalf("expected 2 wide links, got %d", got)
	}
	if got := len(n.Filter(core.ConnectionVariable)); got != 2 {
		t.Fatalf("expected 2 variable links, got %d", got)
	}

	out := n.Outgoing("r0")
	if len(out) != 2 || out[0].Target != "r1" || out[1].Target != "r2" {
		t.Fatalf("outgoing not sorted: %v", out)
	}
}

func TestNetworkAddRejectsUnknownNodes(t *testing.T) {
	n := newTestNetwork()
	if _, err := n.Add("r0", "r9", false, Spec{Latency: 1}); err == nil {
		t.Fatalf("link to unknown node accepted")
	}
	if _, err := n.Add("r0", "r0", false, Spec{Latency: 1}); err == nil {
		t.Fatalf("self link accepted")
	}
}

func TestNetworkRemoveNode(t *testing.T) {
	n := newTestNetwork()
	n.Add("r0", "r1", true, Spec{Latency: 10})
	n.Add("r1", "r2", true, Spec{Latency: 10})
	n.RemoveNode("r1")
	if len(n.Connections()) != 0 {
		t.Fatalf("links to removed node remain: %v", n.Connections())
	}
}

func TestLatencyRangesAndTick(t *testing.T) {
	n := newTestNetwork()
	n.Add("r0", "r1", true, Spec{Latency: 10})
	n.Add("r0", "r2", true, Spec{Kind: core.ConnectionVariable, Range: [2]float64{20, 40}})

	ranges := n.LatencyRanges()
	if ranges[core.ConnectionConstant] != [2]float64{10, 10} {
		t.Fatalf("constant range %v", ranges[core.ConnectionConstant])
	}
	if ranges[core.ConnectionVariable] != [2]float64{20, 40} {
		t.Fatalf("variable range %v", ranges[core.ConnectionVariable])
	}

	tick, err := n.ComputeTick("bailis", "max")
	if err != nil || tick != 300 {
		t.Fatalf("bailis/max tick = %v (%v), want 300", tick, err)
	}
	tick, err = n.ComputeTick("howard", "min")
	if err != nil || tick != 20 {
		t.Fatalf("howard/min tick = %v (%v), want 20", tick, err)
	}
	tick, _ = n.ComputeTick("howard", "mean")
	sd := 20 / math.Sqrt(12) / 2
	want := 2 * (20 + 2*sd)
	if math.Abs(tick-want) > 1e-9 {
		t.Fatalf("howard/mean tick = %v, want %v", tick, want)
	}
	if _, err := n.ComputeTick("guess", "mean"); err == nil {
		t.Fatalf("unknown model accepted")
	}
}
