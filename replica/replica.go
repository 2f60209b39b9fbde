package replica

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/hooks"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/network"
)

// Environment is what a replica needs from the run that owns it.
type Environment interface {
	// Now returns the current virtual time.
	Now() float64
	// NextVersionID allocates a run-unique, strictly increasing version id.
	NextVersionID() core.VersionID
	// NextObjectName allocates a fresh object name.
	NextObjectName() string
	// Deliver schedules msg for delivery to msg.Target after msg.Delay and
	// assigns msg.ID.
	Deliver(msg *core.Message) error
	// Registry returns the run's version arena.
	Registry() *core.Registry
}

// Config holds the static identity of a replica.
type Config struct {
	ID          string
	Label       string
	Type        core.ReplicaType
	Consistency core.Consistency
	Location    core.Location
}

// SendOptions tunes a single Send. A nil Delay uses the connection latency.
type SendOptions struct {
	Delay *float64
}

// Option customizes a replica at construction.
type Option func(*Replica)

// WithStrategy overrides the strategy derived from the consistency level.
func WithStrategy(s Strategy) Option {
	return func(r *Replica) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithHooks attaches a plugin broker.
func WithHooks(b *hooks.PluginBroker) Option {
	return func(r *Replica) { r.hooks = b }
}

// WithLogger sets the parent logger; the replica logs under a named child.
func WithLogger(l *logging.Logger) Option {
	return func(r *Replica) {
		if l != nil {
			r.logger = l
		}
	}
}

// Replica is one storage node. All mutation happens on the goroutine driving
// the scheduler, so it carries no locks.
type Replica struct {
	ID          string
	Label       string
	Type        core.ReplicaType
	Consistency core.Consistency
	Location    core.Location

	env      Environment
	strategy Strategy
	hooks    *hooks.PluginBroker
	logger   *logging.Logger

	log      map[core.VersionID]core.Version
	order    []core.VersionID
	latest   map[string]core.VersionID
	comms    map[string]*network.Connection
	departed bool
}

// New builds a replica bound to env.
func New(cfg Config, env Environment, opts ...Option) *Replica {
	if cfg.Type == "" {
		cfg.Type = core.DefaultReplicaType
	}
	if cfg.Consistency == "" {
		cfg.Consistency = core.DefaultConsistency
	}
	if cfg.Location == "" {
		cfg.Location = core.LocationUnknown
	}
	if cfg.Label == "" {
		cfg.Label = fmt.Sprintf("%s-%s", cfg.Type, cfg.ID)
	}
	r := &Replica{
		ID:          cfg.ID,
		Label:       cfg.Label,
		Type:        cfg.Type,
		Consistency: cfg.Consistency,
		Location:    cfg.Location,
		env:         env,
		logger:      logging.GetLogger(),
		log:         make(map[core.VersionID]core.Version),
		latest:      make(map[string]core.VersionID),
		comms:       make(map[string]*network.Connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.strategy == nil {
		r.strategy = NewStrategy(r.Consistency, DefaultQuorumFraction)
	}
	r.logger = r.logger.Named("replica." + r.ID)
	return r
}

// Connect registers an outgoing connection. Its source must be this replica.
func (r *Replica) Connect(conn *network.Connection) error {
	if conn == nil {
		return fmt.Errorf("replica %s: nil connection", r.ID)
	}
	if conn.Source != r.ID {
		return fmt.Errorf("replica %s: connection source is %s", r.ID, conn.Source)
	}
	r.comms[conn.Target] = conn
	return nil
}

// Disconnect forgets the connection to peer.
func (r *Replica) Disconnect(peer string) {
	delete(r.comms, peer)
}

// Depart marks the replica as removed. Later deliveries are ignored.
func (r *Replica) Depart() {
	r.departed = true
	r.comms = make(map[string]*network.Connection)
}

// Departed reports whether the replica left the run.
func (r *Replica) Departed() bool { return r.departed }

// Strategy returns the consistency strategy in use.
func (r *Replica) Strategy() Strategy { return r.strategy }

// Create writes a root version of a fresh object.
func (r *Replica) Create() core.Version {
	return r.CreateObject(r.env.NextObjectName())
}

// CreateObject writes a root version of the named object.
func (r *Replica) CreateObject(name string) core.Version {
	now := r.env.Now()
	v := core.Version{
		ID:        r.env.NextVersionID(),
		Parent:    core.NoVersion,
		Name:      name,
		Creator:   r.ID,
		Level:     r.Consistency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.write(v, core.EventCreated)
	return v
}

// Update forks the stored version id. The log is untouched on error.
func (r *Replica) Update(id core.VersionID) (core.Version, error) {
	parent, ok := r.log[id]
	if !ok {
		return core.Version{}, &core.NotFoundError{Replica: r.ID, Version: id}
	}
	fork := parent.Fork(r.env.NextVersionID(), r.ID, r.Consistency, r.env.Now())
	r.write(fork, core.EventForked)
	return fork, nil
}

func (r *Replica) write(v core.Version, kind core.EventKind) {
	r.store(v, "")
	r.logger.Debugf("%s %s at %.2f", kind, v, r.env.Now())
	r.strategy.Written(r, v)
	r.Broadcast(v)
}

// Send schedules payload for delivery to peer.
func (r *Replica) Send(payload core.Payload, peer string, opts SendOptions) (*core.Message, error) {
	conn, ok := r.comms[peer]
	if !ok {
		return nil, &core.UnknownPeerError{Source: r.ID, Peer: peer}
	}
	if !conn.Online() {
		return nil, fmt.Errorf("send %s->%s: %w", r.ID, peer, core.ErrLinkOffline)
	}
	var delay float64
	if opts.Delay != nil {
		delay = *opts.Delay
	} else {
		d, err := conn.GetLatency()
		if err != nil {
			return nil, fmt.Errorf("send %s->%s: %w", r.ID, peer, err)
		}
		delay = d
	}

	now := r.env.Now()
	msg := &core.Message{
		Source:  r.ID,
		Target:  peer,
		Payload: payload,
		Delay:   delay,
		SentAt:  now,
		Class:   core.ClassOf(payload),
	}
	ctx := &hooks.MessageContext{Message: msg, Time: now, Delay: delay}
	if err := r.hooks.EmitBeforeSend(ctx); err != nil {
		return nil, fmt.Errorf("send %s->%s: %w", r.ID, peer, err)
	}
	msg.Delay = ctx.Delay
	if err := r.env.Deliver(msg); err != nil {
		return nil, fmt.Errorf("send %s->%s: %w", r.ID, peer, err)
	}
	if err := r.hooks.EmitAfterSend(ctx); err != nil {
		r.logger.Warnf("after-send hook: %v", err)
	}
	return msg, nil
}

// Broadcast sends v to every connected peer and returns the scheduled messages.
func (r *Replica) Broadcast(v core.Version) []*core.Message {
	return r.rebroadcast(v, "")
}

// rebroadcast sends v to every peer except skip. Failures are logged and the
// message is dropped.
func (r *Replica) rebroadcast(v core.Version, skip string) []*core.Message {
	var out []*core.Message
	for _, peer := range r.Peers() {
		if peer == skip {
			continue
		}
		msg, err := r.Send(v, peer, SendOptions{})
		if err != nil {
			r.drop(nil, fmt.Sprintf("send %s to %s: %v", v, peer, err))
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Recv handles a delivered message.
func (r *Replica) Recv(msg *core.Message) {
	if msg == nil || r.departed {
		return
	}
	now := r.env.Now()
	if err := r.hooks.EmitDeliver(&hooks.DeliverContext{Message: msg, Time: now}); err != nil {
		r.logger.Warnf("deliver hook: %v", err)
	}

	switch p := msg.Payload.(type) {
	case core.Ack:
		r.strategy.Acked(r, p, msg.Source)
	case core.Version:
		if r.Has(p.ID) || r.strategy.Holds(p.ID) {
			r.drop(msg, "duplicate")
		} else {
			r.strategy.Receive(r, p, msg.Source)
		}
		r.ack(p.ID, msg.Source)
	default:
		r.drop(msg, "unknown payload")
	}
}

func (r *Replica) ack(id core.VersionID, to string) {
	if _, err := r.Send(core.Ack{Of: id}, to, SendOptions{}); err != nil {
		r.logger.Debugf("ack %d to %s dropped: %v", id, to, err)
	}
}

// store inserts v into the log. from is empty for local writes. It reports
// false when v was already present.
func (r *Replica) store(v core.Version, from string) bool {
	if _, ok := r.log[v.ID]; ok {
		return false
	}
	r.log[v.ID] = v
	r.order = append(r.order, v.ID)
	if v.ID > r.latest[v.Name] {
		r.latest[v.Name] = v.ID
	}

	now := r.env.Now()
	state, _ := r.env.Registry().Store(v, r.ID, now)
	err := r.hooks.EmitStore(&hooks.StoreContext{
		Replica: r.ID,
		Version: v,
		State:   state,
		Local:   from == "",
		Time:    now,
	})
	if err != nil {
		r.logger.Warnf("store hook: %v", err)
	}
	return true
}

func (r *Replica) drop(msg *core.Message, reason string) {
	r.logger.Debugf("drop: %s", reason)
	err := r.hooks.EmitDrop(&hooks.DropContext{
		Replica: r.ID,
		Message: msg,
		Reason:  reason,
		Time:    r.env.Now(),
	})
	if err != nil {
		r.logger.Warnf("drop hook: %v", err)
	}
}

// Has reports whether id is in the log.
func (r *Replica) Has(id core.VersionID) bool {
	_, ok := r.log[id]
	return ok
}

// Get returns the stored version id.
func (r *Replica) Get(id core.VersionID) (core.Version, bool) {
	v, ok := r.log[id]
	return v, ok
}

// Latest returns the highest stored version of the named object.
func (r *Replica) Latest(name string) (core.Version, bool) {
	id, ok := r.latest[name]
	if !ok {
		return core.Version{}, false
	}
	return r.log[id], true
}

// Objects lists the names of objects this replica holds, sorted.
func (r *Replica) Objects() []string {
	names := maps.Keys(r.latest)
	slices.Sort(names)
	return names
}

// Len returns the log length.
func (r *Replica) Len() int { return len(r.order) }

// Log returns the stored versions in arrival order.
func (r *Replica) Log() []core.Version {
	out := make([]core.Version, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.log[id])
	}
	return out
}

// Entries returns the log as validator input.
func (r *Replica) Entries() []core.LogEntry {
	out := make([]core.LogEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.log[id].Entry())
	}
	return out
}

// Peers returns connected peer ids in sorted order.
func (r *Replica) Peers() []string {
	peers := maps.Keys(r.comms)
	slices.Sort(peers)
	return peers
}

// Connection returns the outgoing connection to peer.
func (r *Replica) Connection(peer string) (*network.Connection, bool) {
	c, ok := r.comms[peer]
	return c, ok
}

// Pending counts versions the strategy has not settled yet.
func (r *Replica) Pending() int { return r.strategy.Pending() }

// Committed reports whether the strategy considers id committed.
func (r *Replica) Committed(id core.VersionID) bool { return r.strategy.Committed(r, id) }

// Snapshot is a read-only view of a replica for rendering.
type Snapshot struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Type        core.ReplicaType `json:"type"`
	Consistency core.Consistency `json:"consistency"`
	Location    core.Location    `json:"location"`
	Log         []core.LogEntry  `json:"log"`
	Peers       []string         `json:"peers"`
	Pending     int              `json:"pending"`
	Departed    bool             `json:"departed,omitempty"`
}

// Snapshot captures the current replica state.
func (r *Replica) Snapshot() Snapshot {
	return Snapshot{
		ID:          r.ID,
		Label:       r.Label,
		Type:        r.Type,
		Consistency: r.Consistency,
		Location:    r.Location,
		Log:         r.Entries(),
		Peers:       r.Peers(),
		Pending:     r.Pending(),
		Departed:    r.departed,
	}
}

func (r *Replica) String() string {
	return fmt.Sprintf("%s (%s)", r.Label, r.ID)
}
