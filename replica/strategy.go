package replica

import (
	"math"

	"github.com/example/replica_sim/core"
)

// DefaultQuorumFraction yields a simple majority of direct peers.
const DefaultQuorumFraction = 0.5

// Strategy decides how a replica applies versions it receives. The public
// replica contract stays the same for every variant.
type Strategy interface {
	Level() core.Consistency
	// Written runs after the replica stored a version it wrote itself.
	Written(r *Replica, v core.Version)
	// Receive handles a version the replica has not seen before.
	Receive(r *Replica, v core.Version, from string)
	// Acked handles an acknowledgment from peer.
	Acked(r *Replica, ack core.Ack, from string)
	// Holds reports whether id is held outside the log, e.g. buffered.
	Holds(id core.VersionID) bool
	// Pending counts versions not yet settled.
	Pending() int
	Committed(r *Replica, id core.VersionID) bool
}

// NewStrategy returns the strategy for a consistency level.
func NewStrategy(level core.Consistency, quorum float64) Strategy {
	switch level {
	case core.ConsistencyEventual:
		return &EventualStrategy{}
	case core.ConsistencyCausal:
		return NewCausalStrategy()
	default:
		return NewStrongStrategy(quorum)
	}
}

// apply stores v and forwards it to every peer except the sender. Logs keep
// arrival order, so concurrent forks may be stored out of id order.
func apply(r *Replica, v core.Version, from string) {
	if r.store(v, from) {
		r.rebroadcast(v, from)
	}
}

// EventualStrategy stores and rebroadcasts on arrival.
type EventualStrategy struct{}

func (*EventualStrategy) Level() core.Consistency { return core.ConsistencyEventual }

func (*EventualStrategy) Written(*Replica, core.Version) {}

func (*EventualStrategy) Receive(r *Replica, v core.Version, from string) { apply(r, v, from) }

func (*EventualStrategy) Acked(*Replica, core.Ack, string) {}

func (*EventualStrategy) Holds(core.VersionID) bool { return false }

func (*EventualStrategy) Pending() int { return 0 }

func (*EventualStrategy) Committed(r *Replica, id core.VersionID) bool { return r.Has(id) }

type buffered struct {
	version core.Version
	from    string
}

// CausalStrategy holds a version until its parent is in the log.
type CausalStrategy struct {
	// OnBuffer, when set, is called for every version put on hold.
	OnBuffer func(replica string, v core.Version, at float64)

	waiting map[core.VersionID][]buffered // keyed by missing parent
	held    map[core.VersionID]struct{}
}

// NewCausalStrategy creates an empty causal buffer.
func NewCausalStrategy() *CausalStrategy {
	return &CausalStrategy{
		waiting: make(map[core.VersionID][]buffered),
		held:    make(map[core.VersionID]struct{}),
	}
}

func (*CausalStrategy) Level() core.Consistency { return core.ConsistencyCausal }

func (*CausalStrategy) Written(*Replica, core.Version) {}

func (c *CausalStrategy) Receive(r *Replica, v core.Version, from string) {
	if !v.IsRoot() && !r.Has(v.Parent) {
		c.waiting[v.Parent] = append(c.waiting[v.Parent], buffered{version: v, from: from})
		c.held[v.ID] = struct{}{}
		r.logger.Debugf("buffered %s until %d arrives", v, v.Parent)
		if c.OnBuffer != nil {
			c.OnBuffer(r.ID, v, r.env.Now())
		}
		return
	}
	apply(r, v, from)
	c.release(r, v.ID)
}

// release applies every descendant of id that was waiting, parents first.
func (c *CausalStrategy) release(r *Replica, id core.VersionID) {
	queue := []core.VersionID{id}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children := c.waiting[parent]
		delete(c.waiting, parent)
		for _, b := range children {
			delete(c.held, b.version.ID)
			apply(r, b.version, b.from)
			queue = append(queue, b.version.ID)
		}
	}
}

func (*CausalStrategy) Acked(*Replica, core.Ack, string) {}

func (c *CausalStrategy) Holds(id core.VersionID) bool {
	_, ok := c.held[id]
	return ok
}

func (c *CausalStrategy) Pending() int { return len(c.held) }

func (*CausalStrategy) Committed(r *Replica, id core.VersionID) bool { return r.Has(id) }

type quorumState struct {
	need  int
	peers map[string]bool // peer -> acked
	acks  int
}

// StrongStrategy stores and rebroadcasts like eventual, and additionally
// tracks acknowledgments for its own writes. A write commits once a quorum of
// the direct peers present at write time acked it.
type StrongStrategy struct {
	Fraction float64
	// OnCommit, when set, is called once per committed write.
	OnCommit func(replica string, id core.VersionID, at float64)

	open      map[core.VersionID]*quorumState
	committed map[core.VersionID]struct{}
}

// NewStrongStrategy creates a strategy with the given quorum fraction.
func NewStrongStrategy(fraction float64) *StrongStrategy {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultQuorumFraction
	}
	return &StrongStrategy{
		Fraction:  fraction,
		open:      make(map[core.VersionID]*quorumState),
		committed: make(map[core.VersionID]struct{}),
	}
}

// QuorumSize is the number of acks needed out of n peers.
func QuorumSize(n int, fraction float64) int {
	if n <= 0 {
		return 0
	}
	q := int(math.Floor(fraction*float64(n))) + 1
	if q > n {
		q = n
	}
	return q
}

func (*StrongStrategy) Level() core.Consistency { return core.ConsistencyStrong }

func (s *StrongStrategy) Written(r *Replica, v core.Version) {
	peers := r.Peers()
	need := QuorumSize(len(peers), s.Fraction)
	if need == 0 {
		s.commit(r, v.ID)
		return
	}
	st := &quorumState{need: need, peers: make(map[string]bool, len(peers))}
	for _, p := range peers {
		st.peers[p] = false
	}
	s.open[v.ID] = st
}

func (*StrongStrategy) Receive(r *Replica, v core.Version, from string) { apply(r, v, from) }

func (s *StrongStrategy) Acked(r *Replica, ack core.Ack, from string) {
	st, ok := s.open[ack.Of]
	if !ok {
		return
	}
	acked, known := st.peers[from]
	if !known || acked {
		return
	}
	st.peers[from] = true
	st.acks++
	if st.acks >= st.need {
		delete(s.open, ack.Of)
		s.commit(r, ack.Of)
	}
}

func (s *StrongStrategy) commit(r *Replica, id core.VersionID) {
	s.committed[id] = struct{}{}
	now := r.env.Now()
	r.logger.Debugf("committed %d at %.2f", id, now)
	if s.OnCommit != nil {
		s.OnCommit(r.ID, id, now)
	}
}

func (*StrongStrategy) Holds(core.VersionID) bool { return false }

func (s *StrongStrategy) Pending() int { return len(s.open) }

func (s *StrongStrategy) Committed(r *Replica, id core.VersionID) bool {
	if _, ok := s.committed[id]; ok {
		return true
	}
	if _, ok := s.open[id]; ok {
		return false
	}
	return r.Has(id)
}
