package workload

import (
	"fmt"
	"math"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/scheduler"
)

// RandomConfig parameterizes RandomWorkload.
type RandomConfig struct {
	Users        int
	Objects      int     // size of the shared object set
	AccessMean   float64 // mean wait between accesses
	AccessStddev float64
	WriteProb    float64 // probability an access is a write
	SwitchProb   float64 // probability of moving to another object after an access
	Devices      []string
}

// RandomWorkload simulates users that each work on one device, switching
// between objects of a shared set and waiting a bounded-normal time between
// accesses.
type RandomWorkload struct {
	cfg   RandomConfig
	users []*user
	stats Stats
}

type user struct {
	id      int
	device  string
	current string
}

// NewRandomWorkload validates cfg and builds the workload.
func NewRandomWorkload(cfg RandomConfig) (*RandomWorkload, error) {
	if cfg.Users < 0 {
		return nil, fmt.Errorf("users must be non-negative, got %d", cfg.Users)
	}
	if cfg.Objects <= 0 {
		cfg.Objects = 1
	}
	if cfg.AccessMean <= 0 {
		return nil, fmt.Errorf("access mean must be positive, got %v", cfg.AccessMean)
	}
	if cfg.WriteProb < 0 || cfg.WriteProb > 1 || cfg.SwitchProb < 0 || cfg.SwitchProb > 1 {
		return nil, fmt.Errorf("probabilities must be within [0,1]")
	}
	return &RandomWorkload{cfg: cfg}, nil
}

// Stats returns the access counters.
func (w *RandomWorkload) Stats() Stats { return w.stats }

// Start assigns every user a device and schedules its first access.
func (w *RandomWorkload) Start(rt Runtime) error {
	devices := w.cfg.Devices
	if len(devices) == 0 {
		devices = rt.ReplicaIDs()
	}
	if len(devices) == 0 && w.cfg.Users > 0 {
		return fmt.Errorf("no devices for %d users", w.cfg.Users)
	}
	rnd := rt.Rand()
	for i := 0; i < w.cfg.Users; i++ {
		u := &user{
			id:      i,
			device:  devices[rnd.Intn(len(devices))],
			current: core.ObjectName(rnd.Intn(w.cfg.Objects)),
		}
		w.users = append(w.users, u)
		if err := w.next(rt, u); err != nil {
			return err
		}
	}
	return nil
}

func (w *RandomWorkload) next(rt Runtime, u *user) error {
	wait := BoundedNormal(rt.Rand(), w.cfg.AccessMean, w.cfg.AccessStddev, 1, math.NaN())
	return rt.Schedule(wait, scheduler.EventFunc(func(float64) {
		w.access(rt, u)
	}))
}

func (w *RandomWorkload) access(rt Runtime, u *user) {
	device, ok := rt.Replica(u.device)
	if !ok || device.Departed() {
		rt.Logger().Debugf("user %d stops: device %s left", u.id, u.device)
		return
	}
	kind := Read
	if rt.Rand().Float64() < w.cfg.WriteProb {
		kind = Write
	}
	Perform(rt, device, u.current, kind, &w.stats)
	w.switchObject(rt, u)
	if err := w.next(rt, u); err != nil {
		rt.Logger().Debugf("user %d stops: %v", u.id, err)
	}
}

func (w *RandomWorkload) switchObject(rt Runtime, u *user) {
	if w.cfg.Objects < 2 || rt.Rand().Float64() >= w.cfg.SwitchProb {
		return
	}
	idx := rt.Rand().Intn(w.cfg.Objects - 1)
	if core.ObjectName(idx) == u.current {
		idx = w.cfg.Objects - 1
	}
	u.current = core.ObjectName(idx)
}

var _ Generator = (*RandomWorkload)(nil)
