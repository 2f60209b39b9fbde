package network

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/example/replica_sim/core"
)

// Network is the directed connection table of a run. Bidirectional links are
// stored as two connections.
type Network struct {
	rnd   *rand.Rand
	speed float64
	nodes map[string]core.Location
	conns map[string]map[string]*Connection
}

// New creates an empty network. Latencies are multiplied by speed.
func New(rnd *rand.Rand, speed float64) *Network {
	return &Network{
		rnd:   rnd,
		speed: speed,
		nodes: make(map[string]core.Location),
		conns: make(map[string]map[string]*Connection),
	}
}

// AddNode registers an endpoint and its location.
func (n *Network) AddNode(id string, loc core.Location) {
	n.nodes[id] = loc
}

// HasNode reports whether id was registered.
func (n *Network) HasNode(id string) bool {
	_, ok := n.nodes[id]
	return ok
}

// Location returns the location registered for id.
func (n *Network) Location(id string) core.Location {
	return n.nodes[id]
}

// Nodes returns registered node ids in sorted order.
func (n *Network) Nodes() []string {
	ids := maps.Keys(n.nodes)
	slices.Sort(ids)
	return ids
}

// Add connects source to target, and target to source when bidirectional.
func (n *Network) Add(source, target string, bidirectional bool, spec Spec) (*Connection, error) {
	if !n.HasNode(source) {
		return nil, fmt.Errorf("unknown source node %q", source)
	}
	if !n.HasNode(target) {
		return nil, fmt.Errorf("unknown target node %q", target)
	}
	if source == target {
		return nil, fmt.Errorf("self link on %q", source)
	}
	if spec.Area == "" {
		spec.Area = n.areaBetween(source, target)
	}
	conn, err := NewConnection(source, target, spec, n.rnd, n.speed)
	if err != nil {
		return nil, err
	}
	if n.conns[source] == nil {
		n.conns[source] = make(map[string]*Connection)
	}
	n.conns[source][target] = conn
	if bidirectional {
		if _, err := n.Add(target, source, false, spec); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

func (n *Network) areaBetween(a, b string) core.Area {
	if n.nodes[a] == n.nodes[b] {
		return core.AreaLocal
	}
	return core.AreaWide
}

// Remove deletes the link from source to target (and back when bidirectional).
func (n *Network) Remove(source, target string, bidirectional bool) {
	if links := n.conns[source]; links != nil {
		delete(links, target)
	}
	if bidirectional {
		n.Remove(target, source, false)
	}
}

// RemoveNode deletes a node and every link touching it.
func (n *Network) RemoveNode(id string) {
	delete(n.nodes, id)
	delete(n.conns, id)
	for _, links := range n.conns {
		delete(links, id)
	}
}

// Connection returns the link from source to target.
func (n *Network) Connection(source, target string) (*Connection, bool) {
	c, ok := n.conns[source][target]
	return c, ok
}

// Outgoing returns the links leaving source ordered by target id.
func (n *Network) Outgoing(source string) []*Connection {
	links := n.conns[source]
	targets := maps.Keys(links)
	slices.Sort(targets)
	out := make([]*Connection, 0, len(targets))
	for _, t := range targets {
		out = append(out, links[t])
	}
	return out
}

// Connections returns every link ordered by source then target.
func (n *Network) Connections() []*Connection {
	sources := maps.Keys(n.conns)
	slices.Sort(sources)
	out := make([]*Connection, 0)
	for _, s := range sources {
		out = append(out, n.Outgoing(s)...)
	}
	return out
}

// Filter returns the links of the given kind.
func (n *Network) Filter(kind core.ConnectionKind) []*Connection {
	var out []*Connection
	for _, c := range n.Connections() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// FilterArea returns the links in the given area.
func (n *Network) FilterArea(area core.Area) []*Connection {
	var out []*Connection
	for _, c := range n.Connections() {
		if c.Area() == area {
			out = append(out, c)
		}
	}
	return out
}

// LatencyRanges returns the overall [min,max] latency per connection kind.
func (n *Network) LatencyRanges() map[core.ConnectionKind][2]float64 {
	out := make(map[core.ConnectionKind][2]float64)
	for _, c := range n.Connections() {
		r := c.LatencyRange()
		cur, ok := out[c.Kind]
		if !ok {
			out[c.Kind] = r
			continue
		}
		out[c.Kind] = [2]float64{math.Min(cur[0], r[0]), math.Max(cur[1], r[1])}
	}
	return out
}

// ComputeTick estimates the network tick T from link latencies. The howard
// model is T = 2(mu + 2sd), the bailis model T = 10mu. The estimator picks
// mean, max or min across links.
func (n *Network) ComputeTick(model, estimator string) (float64, error) {
	conns := n.Connections()
	if len(conns) == 0 {
		return 0, fmt.Errorf("network has no connections")
	}
	mus := make([]float64, len(conns))
	sds := make([]float64, len(conns))
	for i, c := range conns {
		mus[i] = c.LatencyMean()
		sds[i] = c.LatencyStddev()
	}

	var est func([]float64) float64
	switch estimator {
	case "", "mean":
		est = meanOf
	case "max":
		est = func(xs []float64) float64 { return slices.Max(xs) }
	case "min":
		est = func(xs []float64) float64 { return slices.Min(xs) }
	default:
		return 0, fmt.Errorf("unknown estimator %q, choose from mean, max, min", estimator)
	}
	mu, sd := est(mus), est(sds)

	switch model {
	case "", "howard":
		return 2 * (mu + 2*sd), nil
	case "bailis":
		return 10 * mu, nil
	default:
		return 0, fmt.Errorf("unknown model %q, choose from howard, bailis", model)
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
