package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/replica_sim/core"
	"github.com/example/replica_sim/network"
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension. Unknown extensions read as JSON.
func FormatFromPath(filename string) Format {
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Meta carries descriptive run information.
type Meta struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Users       int    `json:"users,omitempty" yaml:"users,omitempty"`
	Seed        int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Node describes one replica.
type Node struct {
	ID          string           `json:"id,omitempty" yaml:"id,omitempty"`
	Label       string           `json:"label,omitempty" yaml:"label,omitempty"`
	Type        core.ReplicaType `json:"type,omitempty" yaml:"type,omitempty"`
	Consistency core.Consistency `json:"consistency,omitempty" yaml:"consistency,omitempty"`
	Location    core.Location    `json:"location,omitempty" yaml:"location,omitempty"`
	// Plugins names replica-scoped hook plugins loaded for this node only.
	Plugins []string `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// Link describes a bidirectional connection between two nodes.
type Link struct {
	Source     Endpoint            `json:"source" yaml:"source"`
	Target     Endpoint            `json:"target" yaml:"target"`
	Connection core.ConnectionKind `json:"connection,omitempty" yaml:"connection,omitempty"`
	Latency    *Latency            `json:"latency,omitempty" yaml:"latency,omitempty"`
	Area       core.Area           `json:"area,omitempty" yaml:"area,omitempty"`
}

// Topology is the static description of replicas and links.
type Topology struct {
	Meta  Meta   `json:"meta" yaml:"meta"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Links []Link `json:"links" yaml:"links"`
}

// Endpoint references a node by index or by id.
type Endpoint struct {
	Index int
	ID    string
	ByID  bool
}

// At references the node at index i.
func At(i int) Endpoint { return Endpoint{Index: i} }

// Named references the node with id.
func Named(id string) Endpoint { return Endpoint{ID: id, ByID: true} }

func (e Endpoint) String() string {
	if e.ByID {
		return e.ID
	}
	return strconv.Itoa(e.Index)
}

func (e *Endpoint) set(raw string, quoted bool) {
	if !quoted {
		if i, err := strconv.Atoi(raw); err == nil {
			*e = At(i)
			return
		}
	}
	*e = Named(raw)
}

func (e Endpoint) MarshalJSON() ([]byte, error) {
	if e.ByID {
		return json.Marshal(e.ID)
	}
	return json.Marshal(e.Index)
}

func (e *Endpoint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.set(s, true)
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("link endpoint must be an index or id: %w", err)
	}
	*e = At(i)
	return nil
}

func (e Endpoint) MarshalYAML() (interface{}, error) {
	if e.ByID {
		return e.ID, nil
	}
	return e.Index, nil
}

func (e *Endpoint) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: link endpoint must be an index or id", value.Line)
	}
	e.set(value.Value, value.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0)
	return nil
}

// Latency is either a single value or a two-element range.
type Latency struct {
	Value   float64
	Range   [2]float64
	IsRange bool
}

// Fixed is a single latency value.
func Fixed(v float64) *Latency { return &Latency{Value: v} }

// Between is a latency range.
func Between(lo, hi float64) *Latency { return &Latency{Range: [2]float64{lo, hi}, IsRange: true} }

func (l Latency) MarshalJSON() ([]byte, error) {
	if l.IsRange {
		return json.Marshal(l.Range)
	}
	return json.Marshal(l.Value)
}

func (l *Latency) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var r []float64
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		return l.setRange(r)
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("latency must be a number or [min,max]: %w", err)
	}
	*l = Latency{Value: v}
	return nil
}

func (l Latency) MarshalYAML() (interface{}, error) {
	if l.IsRange {
		return l.Range[:], nil
	}
	return l.Value, nil
}

func (l *Latency) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var r []float64
		if err := value.Decode(&r); err != nil {
			return err
		}
		return l.setRange(r)
	case yaml.ScalarNode:
		var v float64
		if err := value.Decode(&v); err != nil {
			return fmt.Errorf("line %d: latency must be a number or [min,max]", value.Line)
		}
		*l = Latency{Value: v}
		return nil
	default:
		return fmt.Errorf("line %d: latency must be a number or [min,max]", value.Line)
	}
}

func (l *Latency) setRange(r []float64) error {
	if len(r) != 2 {
		return fmt.Errorf("latency range needs two values, got %d", len(r))
	}
	*l = Latency{Range: [2]float64{r[0], r[1]}, IsRange: true}
	return nil
}

// Parse decodes a topology document.
func Parse(data []byte, format Format) (*Topology, error) {
	var topo Topology
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &topo)
	case FormatJSON, "":
		err = json.Unmarshal(data, &topo)
	default:
		return nil, fmt.Errorf("unknown topology format %q", format)
	}
	if err != nil {
		return nil, &core.MalformedTopologyError{Reason: err.Error(), Index: -1}
	}
	return &topo, nil
}

// Load reads and parses a topology file; the format follows the extension.
func Load(filename string) (*Topology, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	topo, err := Parse(data, FormatFromPath(filename))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}
	return topo, nil
}

// Encode serializes the topology.
func (t *Topology) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(t)
	default:
		return json.MarshalIndent(t, "", "  ")
	}
}

// Save writes the topology to filename in the format its extension implies.
func (t *Topology) Save(filename string) error {
	data, err := t.Encode(FormatFromPath(filename))
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// Defaults fill fields a document leaves out.
type Defaults struct {
	Consistency core.Consistency
	Connection  core.ConnectionKind
	Latency     float64
}

// DefaultDefaults matches the documented input defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Consistency: core.DefaultConsistency,
		Connection:  core.ConnectionConstant,
		Latency:     800,
	}
}

// Normalize validates the topology in place, fills defaults, and rewrites every
// link endpoint as a node index.
func (t *Topology) Normalize(d Defaults) error {
	if len(t.Nodes) == 0 {
		return &core.MalformedTopologyError{Reason: "no nodes", Index: -1}
	}
	if d.Consistency == "" {
		d.Consistency = core.DefaultConsistency
	}
	if d.Connection == "" {
		d.Connection = core.ConnectionConstant
	}

	byID := make(map[string]int, len(t.Nodes))
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.ID == "" {
			n.ID = fmt.Sprintf("r%d", i)
		}
		if _, dup := byID[n.ID]; dup {
			return &core.MalformedTopologyError{Reason: fmt.Sprintf("duplicate node id %q", n.ID), Index: i}
		}
		byID[n.ID] = i
		if n.Type == "" {
			n.Type = core.DefaultReplicaType
		}
		if n.Label == "" {
			n.Label = fmt.Sprintf("%s-%s", n.Type, n.ID)
		}
		if n.Location == "" {
			n.Location = core.LocationUnknown
		}
		level := n.Consistency
		if level == "" {
			level = d.Consistency
		}
		c, err := core.ParseConsistency(string(level))
		if err != nil {
			return &core.MalformedTopologyError{Reason: err.Error(), Index: i}
		}
		n.Consistency = c
	}

	for i := range t.Links {
		l := &t.Links[i]
		src, err := resolve(l.Source, byID, len(t.Nodes))
		if err != nil {
			return &core.MalformedTopologyError{Reason: "source " + err.Error(), Index: i}
		}
		dst, err := resolve(l.Target, byID, len(t.Nodes))
		if err != nil {
			return &core.MalformedTopologyError{Reason: "target " + err.Error(), Index: i}
		}
		if src == dst {
			return &core.MalformedTopologyError{Reason: "self link", Index: i}
		}
		l.Source, l.Target = At(src), At(dst)

		kind := l.Connection
		if kind == "" {
			kind = d.Connection
		}
		if kind, err = core.ParseConnectionKind(string(kind)); err != nil {
			return &core.MalformedTopologyError{Reason: err.Error(), Index: i}
		}
		l.Connection = kind

		if err := normalizeLatency(l, d.Latency); err != nil {
			return &core.MalformedTopologyError{Reason: err.Error(), Index: i}
		}
		switch l.Area {
		case "", core.AreaLocal, core.AreaWide:
		default:
			return &core.MalformedTopologyError{Reason: fmt.Sprintf("unknown area %q", l.Area), Index: i}
		}
	}
	return nil
}

func resolve(e Endpoint, byID map[string]int, n int) (int, error) {
	if e.ByID {
		idx, ok := byID[e.ID]
		if !ok {
			return 0, fmt.Errorf("references undefined node %q", e.ID)
		}
		return idx, nil
	}
	if e.Index < 0 || e.Index >= n {
		return 0, fmt.Errorf("references undefined node %d", e.Index)
	}
	return e.Index, nil
}

func normalizeLatency(l *Link, fallback float64) error {
	if l.Latency == nil {
		if l.Connection == core.ConnectionConstant {
			l.Latency = Fixed(fallback)
		} else {
			l.Latency = Between(fallback, fallback)
		}
	}
	lat := l.Latency
	switch l.Connection {
	case core.ConnectionConstant:
		if lat.IsRange {
			return fmt.Errorf("constant connection takes a single latency, got %v", lat.Range)
		}
		if lat.Value < 0 {
			return fmt.Errorf("negative latency %v", lat.Value)
		}
	default:
		if !lat.IsRange {
			l.Latency = Between(lat.Value, lat.Value)
			if l.Connection == core.ConnectionNormal {
				l.Latency = Between(lat.Value, 0)
			}
		}
	}
	return nil
}

// Spec converts a normalized link into a connection spec.
func (l Link) Spec() network.Spec {
	spec := network.Spec{Kind: l.Connection, Area: l.Area}
	if l.Latency != nil {
		spec.Latency = l.Latency.Value
		spec.Range = l.Latency.Range
	}
	return spec
}

// NodeIDs returns node ids in document order.
func (t *Topology) NodeIDs() []string {
	ids := make([]string, len(t.Nodes))
	for i, n := range t.Nodes {
		ids[i] = n.ID
	}
	return ids
}
