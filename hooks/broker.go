package hooks

import (
	"sync"

	"github.com/example/replica_sim/core"
)

// PluginCategory represents the high-level role of a plugin.
type PluginCategory string

const (
	// PluginCategoryPolicy covers consistency and replication policies.
	PluginCategoryPolicy PluginCategory = "policy"
	// PluginCategoryVisualization covers frame publishing and monitoring plugins.
	PluginCategoryVisualization PluginCategory = "visualization"
	// PluginCategoryInstrumentation covers metrics, tracing, and diagnostics.
	PluginCategoryInstrumentation PluginCategory = "instrumentation"
)

// PluginDescriptor describes a plugin registered with the broker.
type PluginDescriptor struct {
	Name        string
	Category    PluginCategory
	Description string
}

// HookBundle groups multiple hook handlers that belong to one plugin.
type HookBundle struct {
	BeforeSend []BeforeSendHook
	AfterSend  []AfterSendHook
	Deliver    []DeliverHook
	Store      []StoreHook
	Drop       []DropHook
}

// MessageContext provides data for send hooks. BeforeSend hooks may adjust Delay.
type MessageContext struct {
	Message *core.Message
	Time    float64
	Delay   float64
}

// DeliverContext is passed when a message reaches its target replica.
type DeliverContext struct {
	Message *core.Message
	Time    float64
}

// StoreContext is passed after a replica stores a version in its log.
type StoreContext struct {
	Replica string
	Version core.Version
	State   core.VersionState
	Local   bool // written by this replica rather than received
	Time    float64
}

// DropContext is passed when a message or version is discarded.
type DropContext struct {
	Replica string
	Message *core.Message
	Reason  string
	Time    float64
}

// BeforeSendHook executes prior to scheduling a message. An error cancels the send.
type BeforeSendHook func(ctx *MessageContext) error

// AfterSendHook executes after a message has been scheduled.
type AfterSendHook func(ctx *MessageContext) error

// DeliverHook executes when a message is handed to its target.
type DeliverHook func(ctx *DeliverContext) error

// StoreHook executes after a version enters a replica log.
type StoreHook func(ctx *StoreContext) error

// DropHook executes when a message or version is discarded.
type DropHook func(ctx *DropContext) error

// PluginBroker coordinates hook registration and triggering.
type PluginBroker struct {
	mu sync.RWMutex

	beforeSendHooks []BeforeSendHook
	afterSendHooks  []AfterSendHook
	deliverHooks    []DeliverHook
	storeHooks      []StoreHook
	dropHooks       []DropHook

	pluginCatalog map[PluginCategory][]PluginDescriptor
	pluginIndex   map[string]PluginDescriptor
}

// NewPluginBroker creates an empty broker instance.
func NewPluginBroker() *PluginBroker {
	return &PluginBroker{
		pluginCatalog: make(map[PluginCategory][]PluginDescriptor),
		pluginIndex:   make(map[string]PluginDescriptor),
	}
}

// RegisterBeforeSend registers a hook for the OnBeforeSend stage.
func (p *PluginBroker) RegisterBeforeSend(h BeforeSendHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beforeSendHooks = append(p.beforeSendHooks, h)
}

// RegisterAfterSend registers a hook for the OnAfterSend stage.
func (p *PluginBroker) RegisterAfterSend(h AfterSendHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.afterSendHooks = append(p.afterSendHooks, h)
}

// RegisterDeliver registers a hook for message delivery.
func (p *PluginBroker) RegisterDeliver(h DeliverHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliverHooks = append(p.deliverHooks, h)
}

// RegisterStore registers a hook for log inserts.
func (p *PluginBroker) RegisterStore(h StoreHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeHooks = append(p.storeHooks, h)
}

// RegisterDrop registers a hook for discarded messages.
func (p *PluginBroker) RegisterDrop(h DropHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropHooks = append(p.dropHooks, h)
}

// emit runs handlers in registration order and stops at the first error.
func emit[C any, H ~func(*C) error](mu *sync.RWMutex, hooks *[]H, ctx *C) error {
	mu.RLock()
	handlers := make([]H, len(*hooks))
	copy(handlers, *hooks)
	mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitBeforeSend triggers OnBeforeSend hooks.
func (p *PluginBroker) EmitBeforeSend(ctx *MessageContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.beforeSendHooks, ctx)
}

// EmitAfterSend triggers OnAfterSend hooks.
func (p *PluginBroker) EmitAfterSend(ctx *MessageContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.afterSendHooks, ctx)
}

// EmitDeliver triggers delivery hooks.
func (p *PluginBroker) EmitDeliver(ctx *DeliverContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.deliverHooks, ctx)
}

// EmitStore triggers store hooks.
func (p *PluginBroker) EmitStore(ctx *StoreContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.storeHooks, ctx)
}

// EmitDrop triggers drop hooks.
func (p *PluginBroker) EmitDrop(ctx *DropContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	return emit(&p.mu, &p.dropHooks, ctx)
}

// RegisterBundle registers a plugin descriptor together with all hook handlers.
func (p *PluginBroker) RegisterBundle(desc PluginDescriptor, bundle HookBundle) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registerDescriptorLocked(desc)

	p.beforeSendHooks = append(p.beforeSendHooks, bundle.BeforeSend...)
	p.afterSendHooks = append(p.afterSendHooks, bundle.AfterSend...)
	p.deliverHooks = append(p.deliverHooks, bundle.Deliver...)
	p.storeHooks = append(p.storeHooks, bundle.Store...)
	p.dropHooks = append(p.dropHooks, bundle.Drop...)
}

// RegisterPluginMetadata stores plugin metadata without registering hooks.
func (p *PluginBroker) RegisterPluginMetadata(desc PluginDescriptor) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerDescriptorLocked(desc)
}

// ListPlugins returns descriptors for plugins in the requested category.
func (p *PluginBroker) ListPlugins(category PluginCategory) []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	catalog := p.pluginCatalog[category]
	if len(catalog) == 0 {
		return nil
	}
	out := make([]PluginDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// ListAllPlugins returns descriptors of every registered plugin.
func (p *PluginBroker) ListAllPlugins() []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PluginDescriptor, 0, len(p.pluginIndex))
	for _, desc := range p.pluginIndex {
		out = append(out, desc)
	}
	return out
}

func (p *PluginBroker) registerDescriptorLocked(desc PluginDescriptor) {
	if desc.Name == "" {
		return
	}
	if _, exists := p.pluginIndex[desc.Name]; exists {
		return
	}
	p.pluginIndex[desc.Name] = desc
	category := desc.Category
	p.pluginCatalog[category] = append(p.pluginCatalog[category], desc)
}
