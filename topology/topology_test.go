package topology

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/example/replica_sim/core"
)

const sampleJSON = `{
  "meta": {"title": "triangle", "users": 2},
  "nodes": [
    {"id": "r0", "type": "desktop", "consistency": "strong", "location": "home"},
    {"id": "r1", "consistency": "low", "location": "work"},
    {"label": "cloud", "location": "cloud"}
  ],
  "links": [
    {"source": 0, "target": 1, "latency": 30},
    {"source": "r1", "target": 2, "connection": "variable", "latency": [20, 40], "area": "wide"},
    {"source": 2, "target": 0}
  ]
}`

const sampleYAML = `
meta:
  title: triangle
  users: 2
nodes:
  - {id: r0, type: desktop, consistency: strong, location: home}
  - {id: r1, consistency: low, location: work}
  - {label: cloud, location: cloud}
links:
  - {source: 0, target: 1, latency: 30}
  - {source: r1, target: 2, connection: variable, latency: [20, 40], area: wide}
  - {source: 2, target: 0}
`

func mustParse(t *testing.T, data string, format Format) *Topology {
	t.Helper()
	topo, err := Parse([]byte(data), format)
	if err != nil {
		t.Fatalf("Parse(%s): %v", format, err)
	}
	if err := topo.Normalize(DefaultDefaults()); err != nil {
		t.Fatalf("Normalize(%s): %v", format, err)
	}
	return topo
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	topo := mustParse(t, sampleJSON, FormatJSON)

	if topo.Meta.Title != "triangle" || topo.Meta.Users != 2 {
		t.Fatalf("unexpected meta %+v", topo.Meta)
	}
	n := topo.Nodes[2]
	if n.ID != "r2" || n.Type != core.ReplicaStorage || n.Consistency != core.ConsistencyStrong {
		t.Fatalf("defaults not applied: %+v", n)
	}
	if topo.Nodes[1].Consistency != core.ConsistencyEventual {
		t.Fatalf("alias low should map to eventual, got %s", topo.Nodes[1].Consistency)
	}
	if topo.Nodes[1].Label != "storage-r1" {
		t.Fatalf("unexpected generated label %q", topo.Nodes[1].Label)
	}

	l := topo.Links[2]
	if l.Connection != core.ConnectionConstant || l.Latency == nil || l.Latency.Value != 800 {
		t.Fatalf("link defaults not applied: %+v", l)
	}
	if topo.Links[1].Source != At(1) {
		t.Fatalf("id endpoint not resolved to index: %+v", topo.Links[1].Source)
	}
	spec := topo.Links[1].Spec()
	if spec.Kind != core.ConnectionVariable || spec.Range != [2]float64{20, 40} || spec.Area != core.AreaWide {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestJSONAndYAMLAgree(t *testing.T) {
	a := mustParse(t, sampleJSON, FormatJSON)
	b := mustParse(t, sampleYAML, FormatYAML)

	if len(a.Nodes) != len(b.Nodes) || len(a.Links) != len(b.Links) {
		t.Fatalf("shape differs")
	}
	for i := range a.Nodes {
		if !reflect.DeepEqual(a.Nodes[i], b.Nodes[i]) {
			t.Fatalf("node %d differs: %+v vs %+v", i, a.Nodes[i], b.Nodes[i])
		}
	}
	for i := range a.Links {
		la, lb := a.Links[i], b.Links[i]
		if la.Source != lb.Source || la.Target != lb.Target || la.Connection != lb.Connection || *la.Latency != *lb.Latency {
			t.Fatalf("link %d differs: %+v vs %+v", i, la, lb)
		}
	}
}

func TestUndefinedNode(t *testing.T) {
	cases := []string{
		`{"nodes":[{"id":"a"}],"links":[{"source":0,"target":3}]}`,
		`{"nodes":[{"id":"a"},{"id":"b"}],"links":[{"source":"a","target":"zz"}]}`,
	}
	for _, doc := range cases {
		topo, err := Parse([]byte(doc), FormatJSON)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		err = topo.Normalize(DefaultDefaults())
		var mt *core.MalformedTopologyError
		if !errors.As(err, &mt) || mt.Index != 0 {
			t.Fatalf("expected MalformedTopologyError at link 0, got %v", err)
		}
	}
}

func TestMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":         `{"nodes":[]}`,
		"duplicate id":  `{"nodes":[{"id":"a"},{"id":"a"}]}`,
		"consistency":   `{"nodes":[{"id":"a","consistency":"psychic"}]}`,
		"kind":          `{"nodes":[{"id":"a"},{"id":"b"}],"links":[{"source":0,"target":1,"connection":"warp"}]}`,
		"constant pair": `{"nodes":[{"id":"a"},{"id":"b"}],"links":[{"source":0,"target":1,"latency":[1,2]}]}`,
		"self link":     `{"nodes":[{"id":"a"}],"links":[{"source":0,"target":0}]}`,
	}
	for name, doc := range cases {
		topo, err := Parse([]byte(doc), FormatJSON)
		if err == nil {
			err = topo.Normalize(DefaultDefaults())
		}
		var mt *core.MalformedTopologyError
		if !errors.As(err, &mt) {
			t.Errorf("%s: expected MalformedTopologyError, got %v", name, err)
		}
	}

	if _, err := Parse([]byte(`{"nodes": [`), FormatJSON); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "net.yml")
	if err := os.WriteFile(src, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	topo, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := topo.Normalize(DefaultDefaults()); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	out := filepath.Join(dir, "net.json")
	if err := topo.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(again.Nodes) != 3 || again.Links[1].Latency.Range != [2]float64{20, 40} {
		t.Fatalf("round trip lost data: %+v", again)
	}
	if again.Links[1].Source != At(1) {
		t.Fatalf("endpoints should be saved as indices, got %+v", again.Links[1].Source)
	}
}

func TestNodePluginsParsed(t *testing.T) {
	doc := "nodes:\n  - id: a\n    plugins: [verbose]\n  - id: b\nlinks:\n  - {source: a, target: b}\n"
	topo := mustParse(t, doc, FormatYAML)
	if err := topo.Normalize(DefaultDefaults()); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(topo.Nodes[0].Plugins) != 1 || topo.Nodes[0].Plugins[0] != "verbose" {
		t.Fatalf("plugins = %v", topo.Nodes[0].Plugins)
	}
	if len(topo.Nodes[1].Plugins) != 0 {
		t.Fatalf("unexpected plugins on b: %v", topo.Nodes[1].Plugins)
	}
}
