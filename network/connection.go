package network

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/replica_sim/core"
)

// maxResample bounds the redraws of a normal latency that fell below one unit.
const maxResample = 16

// Spec describes a link as read from a topology.
type Spec struct {
	Kind    core.ConnectionKind
	Latency float64    // constant latency
	Range   [2]float64 // [min,max] for variable, [mean,stddev] for normal
	Area    core.Area  // derived from endpoint locations when empty
}

// Connection is a directed link from Source to Target. Links are one-way so a
// single direction can be taken down without affecting the other.
type Connection struct {
	Source string
	Target string
	Kind   core.ConnectionKind

	latency float64
	bounds  [2]float64
	area    core.Area
	online  bool
	speed   float64
	rnd     *rand.Rand
}

// NewConnection validates spec and builds an online connection. Latencies are
// multiplied by speed; rnd drives variable and normal draws.
func NewConnection(source, target string, spec Spec, rnd *rand.Rand, speed float64) (*Connection, error) {
	kind := spec.Kind
	if kind == "" {
		kind = core.ConnectionConstant
	}
	if speed <= 0 {
		speed = 1
	}
	switch kind {
	case core.ConnectionConstant:
		if spec.Latency < 0 {
			return nil, fmt.Errorf("constant latency must be non-negative, got %v", spec.Latency)
		}
	case core.ConnectionVariable:
		if spec.Range[0] < 0 || spec.Range[1] < spec.Range[0] {
			return nil, fmt.Errorf("variable latency range invalid: %v", spec.Range)
		}
	case core.ConnectionNormal:
		if spec.Range[0] <= 0 || spec.Range[1] < 0 {
			return nil, fmt.Errorf("normal latency needs mean > 0 and stddev >= 0, got %v", spec.Range)
		}
	default:
		return nil, fmt.Errorf("unknown connection kind %q", kind)
	}
	if kind != core.ConnectionConstant && rnd == nil {
		return nil, fmt.Errorf("%s connection needs a random source", kind)
	}
	return &Connection{
		Source:  source,
		Target:  target,
		Kind:    kind,
		latency: spec.Latency,
		bounds:  spec.Range,
		area:    spec.Area,
		online:  true,
		speed:   speed,
		rnd:     rnd,
	}, nil
}

// GetLatency returns the delivery delay for one message over this link.
func (c *Connection) GetLatency() (float64, error) {
	if !c.online {
		return 0, core.ErrLinkOffline
	}
	switch c.Kind {
	case core.ConnectionVariable:
		lo, hi := c.bounds[0], c.bounds[1]
		return (lo + c.rnd.Float64()*(hi-lo)) * c.speed, nil
	case core.ConnectionNormal:
		mean, sd := c.bounds[0], c.bounds[1]
		v := c.rnd.NormFloat64()*sd + mean
		for i := 0; v <= 1 && i < maxResample; i++ {
			v = c.rnd.NormFloat64()*sd + mean
		}
		if v <= 1 {
			v = 1
		}
		return v * c.speed, nil
	default:
		return c.latency * c.speed, nil
	}
}

// Online reports whether the link currently carries messages.
func (c *Connection) Online() bool { return c.online }

// Up brings the link online.
func (c *Connection) Up() { c.online = true }

// Down takes the link offline.
func (c *Connection) Down() { c.online = false }

// Area returns wide or local.
func (c *Connection) Area() core.Area { return c.area }

// LatencyRange returns [min,max] before speed scaling. Normal links report mean±2sd.
func (c *Connection) LatencyRange() [2]float64 {
	switch c.Kind {
	case core.ConnectionVariable:
		return c.bounds
	case core.ConnectionNormal:
		lo := math.Max(1, c.bounds[0]-2*c.bounds[1])
		return [2]float64{lo, c.bounds[0] + 2*c.bounds[1]}
	default:
		return [2]float64{c.latency, c.latency}
	}
}

// LatencyMean is the expected scaled latency.
func (c *Connection) LatencyMean() float64 {
	switch c.Kind {
	case core.ConnectionVariable:
		return (c.bounds[0] + c.bounds[1]) / 2 * c.speed
	case core.ConnectionNormal:
		return c.bounds[0] * c.speed
	default:
		return c.latency * c.speed
	}
}

// LatencyStddev is the scaled latency standard deviation.
func (c *Connection) LatencyStddev() float64 {
	switch c.Kind {
	case core.ConnectionVariable:
		return (c.bounds[1] - c.bounds[0]) / math.Sqrt(12) * c.speed
	case core.ConnectionNormal:
		return c.bounds[1] * c.speed
	default:
		return 0
	}
}

func (c *Connection) String() string {
	arrow := map[core.ConnectionKind]string{
		core.ConnectionConstant: "->",
		core.ConnectionVariable: "~>",
		core.ConnectionNormal:   "=>",
	}[c.Kind]
	return fmt.Sprintf("%s %s %s", c.Source, arrow, c.Target)
}
