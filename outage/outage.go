package outage

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/network"
	"github.com/example/replica_sim/scheduler"
	"github.com/example/replica_sim/workload"
)

// Partition selects how connections are grouped into outage units.
type Partition string

const (
	PartitionWide  Partition = "wide"  // wide-area links, grouped by source location
	PartitionLocal Partition = "local" // local-area links, grouped by source location
	PartitionBoth  Partition = "both"  // wide and local groups
	PartitionNode  Partition = "node"  // every outgoing link of one node
)

// ParsePartition validates a partition type; empty means wide.
func ParsePartition(s string) (Partition, error) {
	switch p := Partition(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PartitionWide, nil
	case PartitionWide, PartitionLocal, PartitionBoth, PartitionNode:
		return p, nil
	default:
		return "", fmt.Errorf("unknown partition type %q", s)
	}
}

// minDuration floors online and outage durations.
const minDuration = 10.0

// Config parameterizes outage generation.
type Config struct {
	Prob         float64 // probability that the next period is an outage
	OutageMean   float64
	OutageStddev float64
	OnlineMean   float64
	OnlineStddev float64
	Partition    Partition
}

// Runtime is the part of a simulation outages need.
type Runtime interface {
	Now() float64
	Schedule(delay float64, ev scheduler.Event) error
	Rand() *rand.Rand
	Logger() *logging.Logger
}

// Group is a set of connections that go down and up together.
type Group struct {
	Name  string
	conns []*network.Connection

	offline  bool
	since    float64
	outages  int
	downtime float64
}

// Connections returns the group members.
func (g *Group) Connections() []*network.Connection { return g.conns }

// Offline reports whether the group is currently down.
func (g *Group) Offline() bool { return g.offline }

func (g *Group) set(offline bool, now float64) {
	if g.offline == offline {
		return
	}
	if g.offline {
		g.downtime += now - g.since
	} else {
		g.outages++
	}
	g.offline = offline
	g.since = now
	for _, c := range g.conns {
		if offline {
			c.Down()
		} else {
			c.Up()
		}
	}
}

// Stats summarizes the outages of a run.
type Stats struct {
	Groups   int     `json:"groups"`
	Outages  int     `json:"outages"`
	Downtime float64 `json:"downtime"`
}

// Generator drives outages for every group.
type Generator struct {
	cfg    Config
	groups []*Group
	rt     Runtime
}

// Allocate groups the network's connections according to cfg.Partition.
func Allocate(net *network.Network, cfg Config) (*Generator, error) {
	if cfg.Prob < 0 || cfg.Prob > 1 {
		return nil, fmt.Errorf("outage probability must be within [0,1], got %v", cfg.Prob)
	}
	part, err := ParsePartition(string(cfg.Partition))
	if err != nil {
		return nil, err
	}
	cfg.Partition = part

	g := &Generator{cfg: cfg}
	switch part {
	case PartitionWide:
		g.groups = byLocation(net, core.AreaWide)
	case PartitionLocal:
		g.groups = byLocation(net, core.AreaLocal)
	case PartitionBoth:
		g.groups = append(byLocation(net, core.AreaWide), byLocation(net, core.AreaLocal)...)
	case PartitionNode:
		for _, id := range net.Nodes() {
			if conns := net.Outgoing(id); len(conns) > 0 {
				g.groups = append(g.groups, &Group{Name: "node " + id, conns: conns})
			}
		}
	}
	return g, nil
}

func byLocation(net *network.Network, area core.Area) []*Group {
	index := make(map[core.Location]*Group)
	var groups []*Group
	for _, c := range net.FilterArea(area) {
		loc := net.Location(c.Source)
		grp, ok := index[loc]
		if !ok {
			grp = &Group{Name: fmt.Sprintf("%s %s", area, loc)}
			index[loc] = grp
			groups = append(groups, grp)
		}
		grp.conns = append(grp.conns, c)
	}
	return groups
}

// Groups returns the allocated groups.
func (g *Generator) Groups() []*Group { return g.groups }

// Start schedules the first state change of every group.
func (g *Generator) Start(rt Runtime) error {
	g.rt = rt
	for _, grp := range g.groups {
		if err := g.next(grp); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) next(grp *Group) error {
	mean, sd := g.cfg.OnlineMean, g.cfg.OnlineStddev
	if grp.offline {
		mean, sd = g.cfg.OutageMean, g.cfg.OutageStddev
	}
	d := workload.BoundedNormal(g.rt.Rand(), mean, sd, minDuration, math.NaN())
	return g.rt.Schedule(d, scheduler.EventFunc(func(now float64) {
		down := g.rt.Rand().Float64() < g.cfg.Prob
		if down != grp.offline {
			state := "online"
			if down {
				state = "offline"
			}
			g.rt.Logger().Infof("%s: %d connections %s at %.2f", grp.Name, len(grp.conns), state, now)
		}
		grp.set(down, now)
		if err := g.next(grp); err != nil {
			g.rt.Logger().Debugf("%s: outages stop: %v", grp.Name, err)
		}
	}))
}

// Stats totals outages so far. Downtime of groups still down counts up to now.
func (g *Generator) Stats(now float64) Stats {
	st := Stats{Groups: len(g.groups)}
	for _, grp := range g.groups {
		st.Outages += grp.outages
		st.Downtime += grp.downtime
		if grp.offline {
			st.Downtime += now - grp.since
		}
	}
	return st
}

// Restore brings every group back online.
func (g *Generator) Restore(now float64) {
	for _, grp := range g.groups {
		grp.set(false, now)
	}
}
