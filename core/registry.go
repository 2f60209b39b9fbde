package core

import (
	"sort"
	"sync"
)

// VersionState is the replication bookkeeping for one version id.
type VersionState struct {
	Version      Version `json:"version"`
	ReplicaCount int     `json:"replicaCount"`
	ReplicatedAt float64 `json:"replicatedAt,omitempty"`
	Replicated   bool    `json:"replicated"`
}

type versionRecord struct {
	state   VersionState
	holders map[string]struct{}
}

// Registry is the flat arena of every version minted during a run, keyed by id.
// Parent links are ids, so forks and lookups never chase pointers.
type Registry struct {
	mu       sync.RWMutex
	records  map[VersionID]*versionRecord
	children map[VersionID][]VersionID
	latest   map[string]VersionID
	total    int
	track    bool
}

// NewRegistry creates a registry for a run with total replicas. When track is
// false ReplicatedAt is never set.
func NewRegistry(total int, track bool) *Registry {
	return &Registry{
		records:  make(map[VersionID]*versionRecord),
		children: make(map[VersionID][]VersionID),
		latest:   make(map[string]VersionID),
		total:    total,
		track:    track,
	}
}

// SetTotal changes the replica count that marks full replication.
func (r *Registry) SetTotal(total int) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

// Total returns the replica count that marks full replication.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Register records a freshly minted version held by its writer.
func (r *Registry) Register(v Version, holder string, now float64) VersionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.recordLocked(v)
	r.addHolderLocked(rec, holder, now)
	return rec.state
}

// Store records that holder now stores id. The second result is false when
// holder already held it.
func (r *Registry) Store(v Version, holder string, now float64) (VersionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.recordLocked(v)
	added := r.addHolderLocked(rec, holder, now)
	return rec.state, added
}

func (r *Registry) recordLocked(v Version) *versionRecord {
	rec, ok := r.records[v.ID]
	if ok {
		return rec
	}
	rec = &versionRecord{
		state:   VersionState{Version: v},
		holders: make(map[string]struct{}),
	}
	r.records[v.ID] = rec
	if v.Parent != NoVersion {
		r.children[v.Parent] = append(r.children[v.Parent], v.ID)
	}
	if cur, ok := r.latest[v.Name]; !ok || v.ID > cur {
		r.latest[v.Name] = v.ID
	}
	return rec
}

func (r *Registry) addHolderLocked(rec *versionRecord, holder string, now float64) bool {
	if _, ok := rec.holders[holder]; ok {
		return false
	}
	rec.holders[holder] = struct{}{}
	rec.state.ReplicaCount = len(rec.holders)
	if r.track && !rec.state.Replicated && r.total > 0 && rec.state.ReplicaCount >= r.total {
		rec.state.Replicated = true
		rec.state.ReplicatedAt = now
	}
	return true
}

// State returns the bookkeeping for id.
func (r *Registry) State(id VersionID) (VersionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return VersionState{}, false
	}
	return rec.state, true
}

// Holds reports whether holder stores id.
func (r *Registry) Holds(id VersionID, holder string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	_, held := rec.holders[holder]
	return held
}

// Children returns the direct children of id in creation order.
func (r *Registry) Children(id VersionID) []VersionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kids := r.children[id]
	out := make([]VersionID, len(kids))
	copy(out, kids)
	return out
}

// Latest returns the newest version minted for an object.
func (r *Registry) Latest(name string) (Version, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.latest[name]
	if !ok {
		return Version{}, false
	}
	return r.records[id].state.Version, true
}

// Names returns every object name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.latest))
	for name := range r.latest {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// States returns all version states ordered by id.
func (r *Registry) States() []VersionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VersionState, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version.ID < out[j].Version.ID })
	return out
}

// Len returns the number of versions in the arena.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
