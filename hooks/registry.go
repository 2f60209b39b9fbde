package hooks

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// GlobalPluginFactory installs global hooks into the broker.
type GlobalPluginFactory func(broker *PluginBroker) error

// ReplicaPluginFactory installs hooks scoped to a specific replica.
type ReplicaPluginFactory func(replicaID string, broker *PluginBroker) error

type registryEntry struct {
	desc    PluginDescriptor
	factory GlobalPluginFactory
}

type replicaRegistryEntry struct {
	desc    PluginDescriptor
	factory ReplicaPluginFactory
}

// Registry keeps plugin factories that can be activated via configuration.
type Registry struct {
	mu     sync.RWMutex
	broker *PluginBroker

	global  map[string]registryEntry
	replica map[string]replicaRegistryEntry
}

// NewRegistry creates an empty plugin registry bound to a broker.
func NewRegistry(broker *PluginBroker) *Registry {
	if broker == nil {
		broker = NewPluginBroker()
	}
	return &Registry{
		broker:  broker,
		global:  make(map[string]registryEntry),
		replica: make(map[string]replicaRegistryEntry),
	}
}

// Broker returns the underlying broker associated with the registry.
func (r *Registry) Broker() *PluginBroker {
	if r == nil {
		return nil
	}
	return r.broker
}

// RegisterGlobal registers a global plugin factory.
func (r *Registry) RegisterGlobal(name string, desc PluginDescriptor, factory GlobalPluginFactory) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.global[name]; exists {
		return fmt.Errorf("global plugin already registered: %s", name)
	}

	r.global[name] = registryEntry{
		desc:    desc,
		factory: factory,
	}
	return nil
}

// RegisterReplica registers a replica-scoped plugin factory.
func (r *Registry) RegisterReplica(name string, desc PluginDescriptor, factory ReplicaPluginFactory) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.replica[name]; exists {
		return fmt.Errorf("replica plugin already registered: %s", name)
	}

	r.replica[name] = replicaRegistryEntry{
		desc:    desc,
		factory: factory,
	}
	return nil
}

// LoadGlobal activates the requested global plugins.
func (r *Registry) LoadGlobal(names []string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, name := range names {
		entry, err := r.getGlobal(name)
		if err != nil {
			return err
		}
		if err := entry.factory(r.broker); err != nil {
			return fmt.Errorf("global plugin %s failed: %w", name, err)
		}
		r.broker.RegisterPluginMetadata(entry.desc)
	}
	return nil
}

// LoadForReplica activates the requested replica-scoped plugins.
func (r *Registry) LoadForReplica(replicaID string, names []string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, name := range names {
		entry, err := r.getReplica(name)
		if err != nil {
			return err
		}
		if err := entry.factory(replicaID, r.broker); err != nil {
			return fmt.Errorf("replica plugin %s failed: %w", name, err)
		}
		r.broker.RegisterPluginMetadata(entry.desc)
	}
	return nil
}

// Descriptor returns metadata registered under the provided name.
func (r *Registry) Descriptor(name string) (PluginDescriptor, bool) {
	if r == nil {
		return PluginDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.global[name]; ok {
		return entry.desc, true
	}
	if entry, ok := r.replica[name]; ok {
		return entry.desc, true
	}
	return PluginDescriptor{}, false
}

// Names lists every registered plugin name in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := maps.Keys(r.global)
	names = append(names, maps.Keys(r.replica)...)
	r.mu.RUnlock()
	slices.Sort(names)
	return slices.Compact(names)
}

func (r *Registry) getGlobal(name string) (registryEntry, error) {
	r.mu.RLock()
	entry, ok := r.global[name]
	r.mu.RUnlock()
	if !ok {
		return registryEntry{}, fmt.Errorf("global plugin not found: %s", name)
	}
	return entry, nil
}

func (r *Registry) getReplica(name string) (replicaRegistryEntry, error) {
	r.mu.RLock()
	entry, ok := r.replica[name]
	r.mu.RUnlock()
	if !ok {
		return replicaRegistryEntry{}, fmt.Errorf("replica plugin not found: %s", name)
	}
	return entry, nil
}
