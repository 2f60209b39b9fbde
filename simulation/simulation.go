package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/hooks"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/network"
	"github.com/example/replica_sim/outage"
	"github.com/example/replica_sim/replica"
	"github.com/example/replica_sim/scheduler"
	"github.com/example/replica_sim/topology"
	"github.com/example/replica_sim/visual"
	"github.com/example/replica_sim/workload"
)

// Option customizes a simulation.
type Option func(*Simulation)

// WithLogger sets the run logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVisualizer attaches a frame consumer and command source.
func WithVisualizer(v visual.Visualizer) Option {
	return func(s *Simulation) {
		if v != nil {
			s.visual = v
		}
	}
}

// WithWorkload replaces the workload derived from the config.
func WithWorkload(gens ...workload.Generator) Option {
	return func(s *Simulation) {
		s.generators = gens
		s.customWorkload = true
	}
}

// WithRunID fixes the run identifier.
func WithRunID(id string) Option {
	return func(s *Simulation) {
		if id != "" {
			s.ID = id
		}
	}
}

// Simulation owns the scheduler, the replicas and the parameters of one run.
// It is driven from a single goroutine.
type Simulation struct {
	ID   string
	Meta topology.Meta

	cfg      Config
	topo     *topology.Topology
	logger   *logging.Logger
	rnd      *rand.Rand
	seq      *core.Sequence
	names    *core.ObjectNamer
	registry *core.Registry
	sched    *scheduler.Scheduler
	net      *network.Network
	broker   *hooks.PluginBroker
	plugins  *hooks.Registry
	metrics  *Metrics
	tracer   *Tracer
	tally    Tally
	latency  *latencyTracker
	visual   visual.Visualizer
	control  *controller

	replicas map[string]*replica.Replica
	order    []string

	generators     []workload.Generator
	customWorkload bool
	outages        *outage.Generator

	msgIDs   int64
	started  bool
	stopping bool
}

// New builds a run from a topology. Setup errors are fatal.
func New(topo *topology.Topology, cfg Config, opts ...Option) (*Simulation, error) {
	if topo == nil {
		return nil, errors.New("simulation setup: nil topology")
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("simulation setup: %w", err)
	}
	if err := topo.Normalize(cfg.Defaults()); err != nil {
		return nil, fmt.Errorf("simulation setup: %w", err)
	}

	s := &Simulation{
		ID:       uuid.NewString(),
		Meta:     topo.Meta,
		cfg:      cfg,
		topo:     topo,
		logger:   logging.GetLogger(),
		rnd:      rand.New(rand.NewSource(cfg.Seed)),
		seq:      core.NewSequence(),
		names:    core.NewObjectNamer(),
		registry: core.NewRegistry(len(topo.Nodes), cfg.TrackCompleteness),
		broker:   hooks.NewPluginBroker(),
		visual:   visual.NewNullVisualizer(),
		latency:  newLatencyTracker(),
		replicas: make(map[string]*replica.Replica, len(topo.Nodes)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("sim")
	s.sched = scheduler.New(cfg.DrainPolicy, scheduler.WithLogger(s.logger))
	s.net = network.New(s.rnd, cfg.SpeedFactor)
	s.plugins = hooks.NewRegistry(s.broker)
	s.control = newController(s)

	s.broker.RegisterBundle(hooks.PluginDescriptor{
		Name:     "tally",
		Category: hooks.PluginCategoryInstrumentation,
	}, s.tally.bundle())
	s.broker.RegisterBundle(hooks.PluginDescriptor{
		Name:     "latency",
		Category: hooks.PluginCategoryInstrumentation,
	}, s.latency.bundle())
	if err := s.registerPlugins(); err != nil {
		return nil, fmt.Errorf("simulation setup: %w", err)
	}
	if err := s.plugins.LoadGlobal(cfg.Plugins); err != nil {
		return nil, fmt.Errorf("simulation setup: %w", err)
	}

	if err := s.buildReplicas(); err != nil {
		return nil, fmt.Errorf("simulation setup: %w", err)
	}
	if err := s.buildWorkload(); err != nil {
		return nil, fmt.Errorf("simulation setup: %w", err)
	}
	if cfg.OutageProb > 0 {
		gen, err := outage.Allocate(s.net, outage.Config{
			Prob:         cfg.OutageProb,
			OutageMean:   cfg.OutageMean,
			OutageStddev: cfg.OutageStddev,
			OnlineMean:   cfg.OnlineMean,
			OnlineStddev: cfg.OnlineStddev,
			Partition:    cfg.Partition,
		})
		if err != nil {
			return nil, fmt.Errorf("simulation setup: %w", err)
		}
		s.outages = gen
	}

	s.logger.Infof("run %s: %d replicas, %d links, seed %d", s.ID, len(s.order), len(topo.Links), cfg.Seed)
	return s, nil
}

func (s *Simulation) buildReplicas() error {
	for _, n := range s.topo.Nodes {
		s.net.AddNode(n.ID, n.Location)
		r := replica.New(replica.Config{
			ID:          n.ID,
			Label:       n.Label,
			Type:        n.Type,
			Consistency: n.Consistency,
			Location:    n.Location,
		}, s,
			replica.WithStrategy(s.strategyFor(n.Consistency)),
			replica.WithHooks(s.broker),
			replica.WithLogger(s.logger),
		)
		s.replicas[n.ID] = r
		s.order = append(s.order, n.ID)
		if err := s.plugins.LoadForReplica(n.ID, n.Plugins); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
	}

	for i, l := range s.topo.Links {
		src := s.topo.Nodes[l.Source.Index].ID
		dst := s.topo.Nodes[l.Target.Index].ID
		if _, err := s.net.Add(src, dst, true, l.Spec()); err != nil {
			return &core.MalformedTopologyError{Reason: err.Error(), Index: i}
		}
	}
	for _, id := range s.order {
		for _, conn := range s.net.Outgoing(id) {
			if err := s.replicas[id].Connect(conn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulation) strategyFor(level core.Consistency) replica.Strategy {
	switch st := replica.NewStrategy(level, s.cfg.QuorumFraction).(type) {
	case *replica.StrongStrategy:
		st.OnCommit = s.onCommit
		return st
	case *replica.CausalStrategy:
		st.OnBuffer = s.onBuffer
		return st
	default:
		return st
	}
}

func (s *Simulation) onCommit(id string, v core.VersionID, at float64) {
	s.tally.Commits++
	s.metrics.observeCommit()
	if s.tracer != nil {
		s.tracer.record(core.Event{Kind: core.EventCommitted, Time: at, Replica: id, Version: v})
	}
}

func (s *Simulation) onBuffer(id string, v core.Version, at float64) {
	if s.tracer != nil {
		s.tracer.record(core.Event{Kind: core.EventBuffered, Time: at, Replica: id, Version: v.ID})
	}
}

func (s *Simulation) buildWorkload() error {
	if s.customWorkload {
		return nil
	}
	if s.cfg.Trace != "" {
		w, err := workload.LoadTrace(s.cfg.Trace)
		if err != nil {
			return err
		}
		s.generators = append(s.generators, w)
		return nil
	}
	users := s.cfg.Users
	if s.Meta.Users > 0 {
		users = s.Meta.Users
	}
	if users == 0 {
		return nil
	}
	if s.cfg.MaxSimTime <= 0 {
		return errors.New("random workloads need a positive MaxSimTime")
	}
	w, err := workload.NewRandomWorkload(workload.RandomConfig{
		Users:        users,
		Objects:      s.cfg.Objects,
		AccessMean:   s.cfg.AccessMean,
		AccessStddev: s.cfg.AccessStddev,
		WriteProb:    s.cfg.WriteProb,
		SwitchProb:   s.cfg.SwitchProb,
	})
	if err != nil {
		return err
	}
	s.generators = append(s.generators, w)
	return nil
}

// Now returns the current virtual time.
func (s *Simulation) Now() float64 { return s.sched.Now() }

// NextVersionID allocates the next version id of this run.
func (s *Simulation) NextVersionID() core.VersionID { return s.seq.Next() }

// NextObjectName allocates a fresh object name.
func (s *Simulation) NextObjectName() string { return s.names.Next() }

// Registry returns the version arena.
func (s *Simulation) Registry() *core.Registry { return s.registry }

// Rand returns the seeded random source of the run.
func (s *Simulation) Rand() *rand.Rand { return s.rnd }

// Logger returns the run logger.
func (s *Simulation) Logger() *logging.Logger { return s.logger }

// Network returns the connection table.
func (s *Simulation) Network() *network.Network { return s.net }

// Hooks returns the plugin broker.
func (s *Simulation) Hooks() *hooks.PluginBroker { return s.broker }

// Plugins returns the plugin registry; custom plugins may be added before Run.
func (s *Simulation) Plugins() *hooks.Registry { return s.plugins }

// Metrics returns the prometheus collectors, nil unless the metrics plugin is loaded.
func (s *Simulation) Metrics() *Metrics { return s.metrics }

// Trace returns the recorded events, nil unless the trace plugin is loaded.
func (s *Simulation) Trace() []core.Event {
	if s.tracer == nil {
		return nil
	}
	return s.tracer.Events()
}

// Config returns the validated configuration.
func (s *Simulation) Config() Config { return s.cfg }

// Deliver schedules msg; delivery to a replica that left is a no-op.
func (s *Simulation) Deliver(msg *core.Message) error {
	s.msgIDs++
	msg.ID = s.msgIDs
	return s.sched.Schedule(msg.Delay, scheduler.EventFunc(func(now float64) {
		target, ok := s.replicas[msg.Target]
		if !ok || target.Departed() {
			s.logger.Debugf("%s: %v", msg, core.ErrReplicaDeparted)
			err := s.broker.EmitDrop(&hooks.DropContext{Replica: msg.Target, Message: msg, Reason: "departed", Time: now})
			if err != nil {
				s.logger.Warnf("drop hook: %v", err)
			}
			return
		}
		target.Recv(msg)
	}))
}

// Schedule queues a workload or control event. Such events are skipped once
// the run is stopping, so draining only completes messages in flight.
func (s *Simulation) Schedule(delay float64, ev scheduler.Event) error {
	return s.sched.Schedule(delay, scheduler.EventFunc(func(now float64) {
		if s.stopping {
			return
		}
		ev.Fire(now)
	}))
}

// Replica returns the replica with id.
func (s *Simulation) Replica(id string) (*replica.Replica, bool) {
	r, ok := s.replicas[id]
	return r, ok
}

// ReplicaIDs returns the ids of replicas still in the run, in topology order.
func (s *Simulation) ReplicaIDs() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if !s.replicas[id].Departed() {
			out = append(out, id)
		}
	}
	return out
}

// Replicas returns every replica in topology order, departed ones included.
func (s *Simulation) Replicas() []*replica.Replica {
	out := make([]*replica.Replica, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.replicas[id])
	}
	return out
}

// RemoveReplica takes a replica out of the run. Messages already in flight to
// it are dropped on arrival.
func (s *Simulation) RemoveReplica(id string) error {
	r, ok := s.replicas[id]
	if !ok {
		return fmt.Errorf("unknown replica %q", id)
	}
	if r.Departed() {
		return nil
	}
	r.Depart()
	s.net.RemoveNode(id)
	for _, other := range s.replicas {
		other.Disconnect(id)
	}
	s.logger.Infof("replica %s departed at %.2f", id, s.Now())
	return nil
}

// Logs returns every replica log as validator input, keyed by replica id.
func (s *Simulation) Logs() map[string][]core.LogEntry {
	out := make(map[string][]core.LogEntry, len(s.order))
	for _, id := range s.order {
		out[id] = s.replicas[id].Entries()
	}
	return out
}

// Results is what a finished run hands back.
type Results struct {
	RunID     string                     `json:"runID"`
	Meta      topology.Meta              `json:"meta"`
	Time      float64                    `json:"time"`
	Elapsed   time.Duration              `json:"elapsed"`
	Stop      scheduler.StopResult       `json:"stop"`
	Scheduler scheduler.Stats            `json:"scheduler"`
	Messages  Tally                      `json:"messages"`
	Workload  workload.Stats             `json:"workload"`
	Outages   outage.Stats               `json:"outages"`
	Stats     *Stats                     `json:"stats"`
	Logs      map[string][]core.LogEntry `json:"logs"`
	Versions  []core.VersionState        `json:"versions"`
	Events    []core.Event               `json:"events,omitempty"`
}

// Run drives the run to MaxSimTime or until nothing is left to deliver, then
// stops the scheduler with the configured drain policy. Cancelling ctx stops
// early; results are still returned along with ctx's error.
func (s *Simulation) Run(ctx context.Context) (*Results, error) {
	if s.started {
		return nil, errors.New("simulation already ran")
	}
	s.started = true
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.control.ctx = runCtx
	s.control.cancel = cancel

	for _, g := range s.generators {
		if err := g.Start(s); err != nil {
			return nil, fmt.Errorf("start workload: %w", err)
		}
	}
	if s.outages != nil {
		if err := s.outages.Start(s); err != nil {
			return nil, fmt.Errorf("start outages: %w", err)
		}
	}
	if !s.visual.IsHeadless() {
		s.scheduleFrame()
	}

	runErr := s.sched.Run(runCtx, s.cfg.Horizon())
	if runErr != nil && ctx.Err() == nil {
		runErr = nil // stopped by a control command
	}
	horizon := s.Now()
	s.stopping = true
	stop := s.sched.Stop()
	s.logger.Infof("run %s stopped at %.2f: %s fired=%d dropped=%d", s.ID, horizon, stop.Policy, stop.Fired, stop.Dropped)

	res := s.results(horizon, stop)
	res.Elapsed = time.Since(start)
	s.metrics.observeRun(res.Elapsed.Seconds())
	s.visual.PublishFrame(s.frame(true))
	return res, runErr
}

func (s *Simulation) results(horizon float64, stop scheduler.StopResult) *Results {
	res := &Results{
		RunID:     s.ID,
		Meta:      s.Meta,
		Time:      horizon,
		Stop:      stop,
		Scheduler: s.sched.Stats(),
		Messages:  s.tally,
		Stats:     s.CollectStats(),
		Logs:      s.Logs(),
		Versions:  s.registry.States(),
		Events:    s.Trace(),
	}
	for _, g := range s.generators {
		res.Workload = res.Workload.Add(g.Stats())
	}
	if s.outages != nil {
		res.Outages = s.outages.Stats(s.Now())
	}
	return res
}

func (s *Simulation) scheduleFrame() {
	err := s.Schedule(s.cfg.FramePeriod, scheduler.EventFunc(func(float64) {
		s.visual.PublishFrame(s.frame(false))
		s.metrics.observePending(s.sched.Pending())
		s.control.poll()
		if s.sched.Pending() > 0 {
			s.scheduleFrame()
		}
	}))
	if err != nil {
		s.logger.Debugf("frame not scheduled: %v", err)
	}
}

var (
	_ replica.Environment = (*Simulation)(nil)
	_ workload.Runtime    = (*Simulation)(nil)
	_ outage.Runtime      = (*Simulation)(nil)
)
