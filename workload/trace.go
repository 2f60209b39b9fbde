package workload

import (
	"fmt"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/example/replica_sim/scheduler"
)

// TraceEntry is one scripted access.
type TraceEntry struct {
	Time    float64 `json:"time" yaml:"time"`
	Replica string  `json:"replica" yaml:"replica"`
	Object  string  `json:"object" yaml:"object"`
	Access  Access  `json:"access,omitempty" yaml:"access,omitempty"`
}

// TraceWorkload replays scripted accesses at fixed virtual times.
type TraceWorkload struct {
	entries []TraceEntry
	stats   Stats
}

// NewTraceWorkload validates entries and orders them by time. Entries with the
// same time keep their input order.
func NewTraceWorkload(entries []TraceEntry) (*TraceWorkload, error) {
	out := make([]TraceEntry, len(entries))
	copy(out, entries)
	for i := range out {
		e := &out[i]
		if e.Time < 0 {
			return nil, fmt.Errorf("trace entry %d: negative time %v", i, e.Time)
		}
		if e.Replica == "" || e.Object == "" {
			return nil, fmt.Errorf("trace entry %d: replica and object are required", i)
		}
		kind, err := ParseAccess(string(e.Access))
		if err != nil {
			return nil, fmt.Errorf("trace entry %d: %w", i, err)
		}
		e.Access = kind
	}
	slices.SortStableFunc(out, func(a, b TraceEntry) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		default:
			return 0
		}
	})
	return &TraceWorkload{entries: out}, nil
}

// LoadTrace reads a YAML (or JSON) list of trace entries.
func LoadTrace(filename string) (*TraceWorkload, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	var entries []TraceEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse trace %s: %w", filename, err)
	}
	return NewTraceWorkload(entries)
}

// Entries returns the ordered trace.
func (w *TraceWorkload) Entries() []TraceEntry {
	out := make([]TraceEntry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Stats returns the access counters.
func (w *TraceWorkload) Stats() Stats { return w.stats }

// Start schedules every entry. Entries in the past fire immediately.
func (w *TraceWorkload) Start(rt Runtime) error {
	now := rt.Now()
	for _, entry := range w.entries {
		e := entry
		delay := e.Time - now
		if delay < 0 {
			delay = 0
		}
		err := rt.Schedule(delay, scheduler.EventFunc(func(float64) {
			device, ok := rt.Replica(e.Replica)
			if !ok || device.Departed() {
				w.stats.Errors++
				rt.Logger().Debugf("trace access on unknown replica %s dropped", e.Replica)
				return
			}
			Perform(rt, device, e.Object, e.Access, &w.stats)
		}))
		if err != nil {
			return fmt.Errorf("schedule trace entry at %v: %w", e.Time, err)
		}
	}
	return nil
}

var _ Generator = (*TraceWorkload)(nil)
