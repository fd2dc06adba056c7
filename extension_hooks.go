package bookings

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/inbound"
)

// WebhookSurfacePack bundles the verifier and handler for one inbound
// webhook surface so host applications can register integrations as a unit.
type WebhookSurfacePack struct {
	Name     string
	Verifier core.WebhookVerifier
	Handler  inbound.Handler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects the pieces a host application plugs into the
// bookings module before it starts serving: webhook surface packs and
// command/query bundles built around the facade service.
type ExtensionHooks struct {
	mu sync.RWMutex

	webhookPacks map[string]WebhookSurfacePack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		webhookPacks: map[string]WebhookSurfacePack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterWebhookPack(pack WebhookSurfacePack) error {
	if h == nil {
		return fmt.Errorf("bookings: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("bookings: webhook pack name is required")
	}
	if pack.Verifier == nil {
		return fmt.Errorf("bookings: webhook pack %q has no verifier", name)
	}
	if pack.Handler == nil {
		return fmt.Errorf("bookings: webhook pack %q has no handler", name)
	}

	normalized := WebhookSurfacePack{
		Name:     name,
		Verifier: pack.Verifier,
		Handler:  pack.Handler,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.webhookPacks[name]; exists {
		return fmt.Errorf("bookings: webhook pack %q already registered", name)
	}
	h.webhookPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("bookings: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("bookings: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("bookings: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("bookings: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyWebhookPacks registers every pack's verifier/handler pair on the
// inbound dispatcher, in pack name order.
func (h *ExtensionHooks) ApplyWebhookPacks(dispatcher *inbound.Dispatcher) error {
	if h == nil {
		return nil
	}
	if dispatcher == nil {
		return fmt.Errorf("bookings: dispatcher is required")
	}

	for _, pack := range h.WebhookPacks() {
		if err := dispatcher.Register(pack.Verifier, pack.Handler); err != nil {
			return err
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("bookings: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) WebhookPacks() []WebhookSurfacePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.webhookPacks))
	for name := range h.webhookPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]WebhookSurfacePack, 0, len(names))
	for _, name := range names {
		out = append(out, h.webhookPacks[name])
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
