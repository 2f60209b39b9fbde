package visual

import (
	"context"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/replica"
)

// ControlCommandType represents types of control instructions from a UI.
type ControlCommandType string

const (
	CommandNone   ControlCommandType = "none"
	CommandPause  ControlCommandType = "pause"
	CommandResume ControlCommandType = "resume"
	CommandStop   ControlCommandType = "stop"
	CommandDepart ControlCommandType = "depart" // remove Replica from the run
)

// ControlCommand captures a control instruction for the simulation.
type ControlCommand struct {
	Type    ControlCommandType `json:"type"`
	Replica string             `json:"replica,omitempty"`
}

// LinkSnapshot is one directed connection as rendered.
type LinkSnapshot struct {
	Source  string              `json:"source"`
	Target  string              `json:"target"`
	Kind    core.ConnectionKind `json:"kind"`
	Area    core.Area           `json:"area"`
	Online  bool                `json:"online"`
	Latency [2]float64          `json:"latency"`
}

// ReplicaStats are display metrics derived per replica.
type ReplicaStats struct {
	Versions        int     `json:"versions"`
	Staleness       float64 `json:"staleness"` // percent of objects not at their latest version
	LatencyMean     float64 `json:"latencyMean"`
	LatencyStddev   float64 `json:"latencyStddev"`
	FullyReplicated int     `json:"fullyReplicated"`
}

// Frame is one published view of a run.
type Frame struct {
	RunID    string                  `json:"runID"`
	Time     float64                 `json:"time"`
	Final    bool                    `json:"final,omitempty"`
	Replicas []replica.Snapshot      `json:"replicas"`
	Links    []LinkSnapshot          `json:"links"`
	Versions []core.VersionState     `json:"versions,omitempty"`
	Stats    map[string]ReplicaStats `json:"stats,omitempty"`
}

// Visualizer defines methods for visualization implementations.
type Visualizer interface {
	SetHeadless(headless bool)
	IsHeadless() bool
	PublishFrame(frame *Frame)
	NextCommand() (ControlCommand, bool)
	WaitCommand(ctx context.Context) (ControlCommand, bool)
}

// NullVisualizer is a no-op implementation used for headless mode.
type NullVisualizer struct {
	headless bool
}

// NewNullVisualizer creates a new NullVisualizer.
func NewNullVisualizer() *NullVisualizer {
	return &NullVisualizer{headless: true}
}

func (n *NullVisualizer) SetHeadless(headless bool) {
	n.headless = headless
}

func (n *NullVisualizer) IsHeadless() bool {
	return n.headless
}

func (n *NullVisualizer) PublishFrame(*Frame) {}

func (n *NullVisualizer) NextCommand() (ControlCommand, bool) {
	return ControlCommand{Type: CommandNone}, false
}

func (n *NullVisualizer) WaitCommand(ctx context.Context) (ControlCommand, bool) {
	return ControlCommand{Type: CommandNone}, false
}
