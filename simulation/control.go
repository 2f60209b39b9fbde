package simulation

import (
	"context"

	"github.com/example/replica_sim/visual"
)

// controller applies UI commands between frames. pause blocks the run until
// resume or stop arrives; stop cancels the run context.
type controller struct {
	sim    *Simulation
	ctx    context.Context
	cancel context.CancelFunc
	paused bool
}

func newController(s *Simulation) *controller {
	return &controller{sim: s, ctx: context.Background()}
}

// poll drains queued commands, then waits while paused.
func (c *controller) poll() {
	for {
		cmd, ok := c.sim.visual.NextCommand()
		if !ok {
			break
		}
		if !c.handle(cmd) {
			return
		}
	}
	for c.paused {
		cmd, ok := c.sim.visual.WaitCommand(c.ctx)
		if !ok {
			return
		}
		if !c.handle(cmd) {
			return
		}
	}
}

// handle applies cmd and reports whether the run continues.
func (c *controller) handle(cmd visual.ControlCommand) bool {
	log := c.sim.logger
	switch cmd.Type {
	case visual.CommandPause:
		if !c.paused {
			log.Infof("paused at %.2f", c.sim.Now())
		}
		c.paused = true
	case visual.CommandResume:
		if c.paused {
			log.Infof("resumed at %.2f", c.sim.Now())
		}
		c.paused = false
	case visual.CommandStop:
		log.Infof("stop requested at %.2f", c.sim.Now())
		c.paused = false
		if c.cancel != nil {
			c.cancel()
		}
		return false
	case visual.CommandDepart:
		if err := c.sim.RemoveReplica(cmd.Replica); err != nil {
			log.Warnf("depart: %v", err)
		}
	case visual.CommandNone, "":
	default:
		log.Warnf("unknown control command %q", cmd.Type)
	}
	return true
}
