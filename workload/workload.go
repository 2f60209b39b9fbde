package workload

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/replica"
	"github.com/example/replica_sim/scheduler"
)

// Access is the kind of a user access.
type Access string

const (
	Read  Access = "read"
	Write Access = "write"
)

// ParseAccess validates an access kind; empty means write.
func ParseAccess(s string) (Access, error) {
	switch Access(strings.ToLower(strings.TrimSpace(s))) {
	case Read:
		return Read, nil
	case Write, "":
		return Write, nil
	default:
		return "", fmt.Errorf("unknown access %q", s)
	}
}

// Runtime is the part of a simulation a workload drives.
type Runtime interface {
	Now() float64
	Schedule(delay float64, ev scheduler.Event) error
	Replica(id string) (*replica.Replica, bool)
	ReplicaIDs() []string
	Registry() *core.Registry
	Rand() *rand.Rand
	Logger() *logging.Logger
}

// Generator produces accesses once started.
type Generator interface {
	Start(rt Runtime) error
	Stats() Stats
}

// Stats counts accesses issued by a generator.
type Stats struct {
	Reads      int `json:"reads"`
	Writes     int `json:"writes"`
	StaleReads int `json:"staleReads"`
	Errors     int `json:"errors"`
}

// Add sums two stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Reads:      s.Reads + o.Reads,
		Writes:     s.Writes + o.Writes,
		StaleReads: s.StaleReads + o.StaleReads,
		Errors:     s.Errors + o.Errors,
	}
}

// Perform applies one access on device. A write updates the device's latest
// local version of the object, or creates the object when absent. A read is
// stale when the device lags the newest version minted anywhere.
func Perform(rt Runtime, device *replica.Replica, object string, kind Access, stats *Stats) {
	switch kind {
	case Read:
		stats.Reads++
		local, ok := device.Latest(object)
		global, exists := rt.Registry().Latest(object)
		if exists && (!ok || local.ID < global.ID) {
			stats.StaleReads++
			rt.Logger().Debugf("stale read of %s on %s at %.2f", object, device.ID, rt.Now())
		}
	default:
		stats.Writes++
		local, ok := device.Latest(object)
		if !ok {
			device.CreateObject(object)
			return
		}
		if _, err := device.Update(local.ID); err != nil {
			stats.Errors++
			rt.Logger().Warnf("write on %s: %v", device.ID, err)
		}
	}
}

// BoundedNormal draws from a normal distribution and clamps the result into
// [floor, ceil]. A NaN bound is ignored.
func BoundedNormal(rnd *rand.Rand, mean, stddev, floor, ceil float64) float64 {
	v := rnd.NormFloat64()*stddev + mean
	if !math.IsNaN(floor) && v < floor {
		v = floor
	}
	if !math.IsNaN(ceil) && v > ceil {
		v = ceil
	}
	return v
}
