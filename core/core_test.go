package core

import (
	"errors"
	"sync"
	"testing"
)

func TestSequenceConcurrentUnique(t *testing.T) {
	seq := NewSequence()
	const workers, per = 8, 500

	var mu sync.Mutex
	seen := make(map[VersionID]bool, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]VersionID, 0, per)
			prev := NoVersion
			for i := 0; i < per; i++ {
				id := seq.Next()
				if id <= prev {
					t.Errorf("ids not increasing within goroutine: %d after %d", id, prev)
				}
				prev = id
				local = append(local, id)
			}
			mu.Lock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("expected %d ids, got %d", workers*per, len(seen))
	}
	if seq.Value() != VersionID(workers*per) {
		t.Fatalf("expected last id %d, got %d", workers*per, seq.Value())
	}
}

func TestSequencesAreIsolated(t *testing.T) {
	a, b := NewSequence(), NewSequence()
	a.Next()
	a.Next()
	if got := b.Next(); got != 1 {
		t.Fatalf("second sequence should start at 1, got %d", got)
	}
}

func TestObjectName(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 701: "ZZ", 702: "AAA"}
	for idx, want := range cases {
		if got := ObjectName(idx); got != want {
			t.Fatalf("ObjectName(%d) = %q, want %q", idx, got, want)
		}
	}
	n := NewObjectNamer()
	if n.Next() != "A" || n.Next() != "B" {
		t.Fatalf("namer should start at A, B")
	}
}

func TestVersionFork(t *testing.T) {
	root := Version{ID: 3, Name: "A", Creator: "r0", Level: ConsistencyStrong, CreatedAt: 10, UpdatedAt: 10}
	fork := root.Fork(7, "r1", ConsistencyEventual, 42)

	if fork.ID != 7 || fork.Parent != 3 {
		t.Fatalf("unexpected fork ids: %+v", fork)
	}
	if fork.Name != "A" || fork.Creator != "r1" || fork.Level != ConsistencyEventual {
		t.Fatalf("unexpected fork attributes: %+v", fork)
	}
	if fork.CreatedAt != 10 || fork.UpdatedAt != 42 {
		t.Fatalf("fork timestamps wrong: created=%v updated=%v", fork.CreatedAt, fork.UpdatedAt)
	}
	if root.UpdatedAt != 10 {
		t.Fatalf("forking must not touch the original")
	}
	if !root.IsRoot() || fork.IsRoot() {
		t.Fatalf("IsRoot mismatch")
	}
}

func TestRegistryReplicatedAtExactlyAtTotal(t *testing.T) {
	reg := NewRegistry(3, true)
	v := Version{ID: 1, Name: "A"}

	st := reg.Register(v, "r0", 0)
	if st.ReplicaCount != 1 || st.Replicated {
		t.Fatalf("after create: %+v", st)
	}

	st, added := reg.Store(v, "r1", 5)
	if !added || st.ReplicaCount != 2 || st.Replicated {
		t.Fatalf("after second holder: %+v added=%v", st, added)
	}

	st, added = reg.Store(v, "r1", 6)
	if added || st.ReplicaCount != 2 {
		t.Fatalf("repeat store must be idempotent: %+v", st)
	}

	st, _ = reg.Store(v, "r2", 9)
	if !st.Replicated || st.ReplicatedAt != 9 || st.ReplicaCount != 3 {
		t.Fatalf("expected replication at 9: %+v", st)
	}

	st, _ = reg.Store(v, "r3", 12)
	if st.ReplicatedAt != 9 {
		t.Fatalf("ReplicatedAt must be set once, got %v", st.ReplicatedAt)
	}
}

func TestRegistryWithoutTracking(t *testing.T) {
	reg := NewRegistry(1, false)
	st := reg.Register(Version{ID: 1, Name: "A"}, "r0", 3)
	if st.Replicated {
		t.Fatalf("tracking disabled, replicated must stay false")
	}
}

func TestRegistryChildrenAndLatest(t *testing.T) {
	reg := NewRegistry(2, true)
	root := Version{ID: 1, Name: "A"}
	reg.Register(root, "r0", 0)
	reg.Register(root.Fork(2, "r0", ConsistencyStrong, 1), "r0", 1)
	reg.Register(root.Fork(3, "r1", ConsistencyStrong, 1), "r1", 1)
	reg.Register(Version{ID: 4, Name: "B"}, "r1", 2)

	kids := reg.Children(1)
	if len(kids) != 2 || kids[0] != 2 || kids[1] != 3 {
		t.Fatalf("unexpected children %v", kids)
	}
	latest, ok := reg.Latest("A")
	if !ok || latest.ID != 3 {
		t.Fatalf("expected latest A=3, got %+v", latest)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("unexpected names %v", names)
	}
	if !reg.Holds(3, "r1") || reg.Holds(3, "r0") {
		t.Fatalf("holder tracking wrong")
	}
}

func TestParseConsistency(t *testing.T) {
	cases := []struct {
		in   string
		want Consistency
		err  bool
	}{
		{"", ConsistencyStrong, false},
		{"strong", ConsistencyStrong, false},
		{"medium", ConsistencyCausal, false},
		{"Causal", ConsistencyCausal, false},
		{"low", ConsistencyEventual, false},
		{"sometimes", "", true},
	}
	for _, tc := range cases {
		got, err := ParseConsistency(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("ParseConsistency(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseConsistency(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLogEntryValidate(t *testing.T) {
	if err := (LogEntry{Name: "A", Version: 1}).Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}
	var malformed *MalformedLogEntryError
	if err := (LogEntry{Version: 1}).Validate(); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedLogEntryError, got %v", err)
	}
	if err := (LogEntry{Name: "A"}).Validate(); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedLogEntryError, got %v", err)
	}
}

func TestMessagePayloadClass(t *testing.T) {
	w := &Message{Payload: Version{ID: 1, Name: "A"}}
	a := &Message{Payload: Ack{Of: 1}}
	if w.IsAck() || !a.IsAck() {
		t.Fatalf("IsAck mismatch")
	}
	if ClassOf(w.Payload) != ClassWrite || ClassOf(a.Payload) != ClassAck {
		t.Fatalf("ClassOf mismatch")
	}
	if _, ok := a.Version(); ok {
		t.Fatalf("ack carries no version")
	}
}
