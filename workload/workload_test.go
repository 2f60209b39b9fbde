package workload

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/replica"
	"github.com/example/replica_sim/scheduler"
)

type stubRuntime struct {
	sched    *scheduler.Scheduler
	seq      *core.Sequence
	reg      *core.Registry
	rnd      *rand.Rand
	replicas map[string]*replica.Replica
	ids      []string
}

func newStubRuntime(ids ...string) *stubRuntime {
	rt := &stubRuntime{
		sched:    scheduler.New(scheduler.DropInFlight, scheduler.WithLogger(logging.NewNop())),
		seq:      core.NewSequence(),
		reg:      core.NewRegistry(len(ids), true),
		rnd:      rand.New(rand.NewSource(7)),
		replicas: make(map[string]*replica.Replica),
		ids:      ids,
	}
	for _, id := range ids {
		rt.replicas[id] = replica.New(replica.Config{ID: id, Consistency: core.ConsistencyEventual}, rt,
			replica.WithLogger(logging.NewNop()))
	}
	return rt
}

func (rt *stubRuntime) Now() float64                  { return rt.sched.Now() }
func (rt *stubRuntime) NextVersionID() core.VersionID { return rt.seq.Next() }
func (rt *stubRuntime) NextObjectName() string        { return "obj" }
func (rt *stubRuntime) Deliver(msg *core.Message) error {
	return rt.sched.Schedule(msg.Delay, scheduler.EventFunc(func(float64) {
		rt.replicas[msg.Target].Recv(msg)
	}))
}
func (rt *stubRuntime) Registry() *core.Registry { return rt.reg }
func (rt *stubRuntime) Schedule(delay float64, ev scheduler.Event) error {
	return rt.sched.Schedule(delay, ev)
}
func (rt *stubRuntime) Replica(id string) (*replica.Replica, bool) {
	r, ok := rt.replicas[id]
	return r, ok
}
func (rt *stubRuntime) ReplicaIDs() []string    { return rt.ids }
func (rt *stubRuntime) Rand() *rand.Rand        { return rt.rnd }
func (rt *stubRuntime) Logger() *logging.Logger { return logging.NewNop() }

func TestTraceWorkloadReplays(t *testing.T) {
	rt := newStubRuntime("a", "b")
	w, err := NewTraceWorkload([]TraceEntry{
		{Time: 20, Replica: "a", Object: "X"},
		{Time: 10, Replica: "a", Object: "X", Access: Write},
		{Time: 30, Replica: "b", Object: "X", Access: Read},
		{Time: 40, Replica: "ghost", Object: "X"},
	})
	if err != nil {
		t.Fatalf("NewTraceWorkload: %v", err)
	}
	if got := w.Entries()[0].Time; got != 10 {
		t.Fatalf("entries not ordered by time, first is %v", got)
	}
	if err := w.Start(rt); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rt.sched.Run(context.Background(), math.Inf(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	a := rt.replicas["a"]
	log := a.Log()
	if len(log) != 2 || !log[0].IsRoot() || log[1].Parent != log[0].ID {
		t.Fatalf("expected create then update on a, got %v", log)
	}
	st := w.Stats()
	if st.Writes != 2 || st.Reads != 1 || st.Errors != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	// b has no links, so its read of X is stale.
	if st.StaleReads != 1 {
		t.Fatalf("expected one stale read, got %d", st.StaleReads)
	}
}

func TestTraceValidation(t *testing.T) {
	bad := [][]TraceEntry{
		{{Time: -1, Replica: "a", Object: "X"}},
		{{Time: 1, Object: "X"}},
		{{Time: 1, Replica: "a", Object: "X", Access: "delete"}},
	}
	for i, entries := range bad {
		if _, err := NewTraceWorkload(entries); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestLoadTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.yaml")
	doc := "- {time: 5, replica: a, object: A, access: write}\n- {time: 6, replica: a, object: A, access: read}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w, err := LoadTrace(path)
	if err != nil {
		t.Fatalf("LoadTrace: %v", err)
	}
	entries := w.Entries()
	if len(entries) != 2 || entries[1].Access != Read || entries[0].Object != "A" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestRandomWorkloadGeneratesAccesses(t *testing.T) {
	rt := newStubRuntime("a", "b", "c")
	w, err := NewRandomWorkload(RandomConfig{
		Users:        3,
		Objects:      4,
		AccessMean:   10,
		AccessStddev: 2,
		WriteProb:    1,
		SwitchProb:   0.5,
	})
	if err != nil {
		t.Fatalf("NewRandomWorkload: %v", err)
	}
	if err := w.Start(rt); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rt.sched.Run(context.Background(), 200); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := w.Stats()
	if st.Writes == 0 || st.Reads != 0 || st.Errors != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if rt.seq.Value() != core.VersionID(st.Writes) {
		t.Fatalf("each write should mint one version: writes=%d ids=%d", st.Writes, rt.seq.Value())
	}
}

func TestRandomWorkloadValidation(t *testing.T) {
	if _, err := NewRandomWorkload(RandomConfig{Users: 1, AccessMean: 0}); err == nil {
		t.Fatalf("expected error for zero access mean")
	}
	if _, err := NewRandomWorkload(RandomConfig{Users: 1, AccessMean: 5, WriteProb: 2}); err == nil {
		t.Fatalf("expected error for bad probability")
	}
}

func TestBoundedNormal(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := BoundedNormal(rnd, 5, 10, 1, 8)
		if v < 1 || v > 8 {
			t.Fatalf("value %v escaped bounds", v)
		}
	}
}
