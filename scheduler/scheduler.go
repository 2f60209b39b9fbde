package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/logging"
	"github.com/example/replica_sim/queue"
)

// ErrQueueFull is returned when the in-flight capacity is exhausted.
var ErrQueueFull = errors.New("scheduler queue is full")

// Event is fired by the scheduler at its due virtual time.
type Event interface {
	Fire(now float64)
}

// EventFunc adapts a function into an Event.
type EventFunc func(now float64)

// Fire calls the underlying function.
func (f EventFunc) Fire(now float64) {
	if f != nil {
		f(now)
	}
}

// DrainPolicy decides what happens to queued events when a run stops.
type DrainPolicy string

const (
	// DrainInFlight fires every event queued before the stop; nothing new is accepted.
	DrainInFlight DrainPolicy = "drain"
	// DropInFlight discards every queued event.
	DropInFlight DrainPolicy = "drop"
)

// ParseDrainPolicy validates a policy name; empty means drain.
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch DrainPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DrainInFlight:
		return DrainInFlight, nil
	case DropInFlight:
		return DropInFlight, nil
	default:
		return "", fmt.Errorf("unknown drain policy %q", s)
	}
}

// Stats counts scheduler activity.
type Stats struct {
	Scheduled int64 `json:"scheduled"`
	Fired     int64 `json:"fired"`
	Rejected  int64 `json:"rejected"`
	Dropped   int64 `json:"dropped"`
}

// StopResult reports what Stop did with queued events.
type StopResult struct {
	Policy  DrainPolicy `json:"policy"`
	Fired   int         `json:"fired"`
	Dropped int         `json:"dropped"`
}

// Scheduler is the single virtual-time event loop of a run. It is not safe for
// concurrent use: every event fires on the goroutine calling Run, Step or Stop.
type Scheduler struct {
	now    float64
	queue  *queue.TimedQueue[Event]
	closed bool
	policy DrainPolicy
	stats  Stats
	log    *logging.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCapacity bounds the number of queued events.
func WithCapacity(capacity int) Option {
	return func(s *Scheduler) {
		s.queue = queue.NewTimedQueue[Event]("events", capacity, nil, queue.TimedHooks[Event]{})
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// New creates a scheduler at virtual time zero.
func New(policy DrainPolicy, opts ...Option) *Scheduler {
	if policy == "" {
		policy = DrainInFlight
	}
	s := &Scheduler{
		queue:  queue.NewTimedQueue[Event]("events", queue.UnlimitedCapacity, nil, queue.TimedHooks[Event]{}),
		policy: policy,
		log:    logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current virtual time.
func (s *Scheduler) Now() float64 {
	return s.now
}

// Policy returns the configured drain policy.
func (s *Scheduler) Policy() DrainPolicy {
	return s.policy
}

// Closed reports whether Stop has been called.
func (s *Scheduler) Closed() bool {
	return s.closed
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// Schedule queues ev to fire delay time units from now. It never blocks.
func (s *Scheduler) Schedule(delay float64, ev Event) error {
	if ev == nil {
		return errors.New("nil event")
	}
	if s.closed {
		s.stats.Rejected++
		return core.ErrSchedulerClosed
	}
	if delay < 0 || math.IsNaN(delay) || math.IsInf(delay, 0) {
		s.stats.Rejected++
		return fmt.Errorf("invalid delay %v", delay)
	}
	if !s.queue.Push(ev, s.now+delay) {
		s.stats.Rejected++
		return ErrQueueFull
	}
	s.stats.Scheduled++
	return nil
}

// Step fires the earliest queued event. It returns false when nothing is queued.
func (s *Scheduler) Step() bool {
	ev, at, ok := s.queue.Pop()
	if !ok {
		return false
	}
	if at > s.now {
		s.now = at
	}
	s.stats.Fired++
	ev.Fire(s.now)
	return true
}

// Run fires events in due-time order until the next event is later than until,
// the queue is empty, or ctx is cancelled. Events due after until stay queued.
func (s *Scheduler) Run(ctx context.Context, until float64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, at, ok := s.queue.Peek()
		if !ok || at > until {
			if !math.IsInf(until, 1) && until > s.now {
				s.now = until
			}
			return nil
		}
		s.Step()
	}
}

// Stop closes the scheduler to new events and applies the drain policy to the
// events already queued.
func (s *Scheduler) Stop() StopResult {
	res := StopResult{Policy: s.policy}
	if s.closed {
		return res
	}
	s.closed = true
	switch s.policy {
	case DropInFlight:
		res.Dropped = s.queue.Clear()
		s.stats.Dropped += int64(res.Dropped)
	default:
		for s.Step() {
			res.Fired++
		}
	}
	s.log.Debugf("scheduler stopped at %.2f: policy=%s fired=%d dropped=%d", s.now, res.Policy, res.Fired, res.Dropped)
	return res
}
