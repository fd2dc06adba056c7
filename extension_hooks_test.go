package bookings

import (
	"context"
	"testing"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/inbound"
)

func TestExtensionHooks_RegisterAndApplyWebhookPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	handler := &extensionWebhookHandler{}
	pack := WebhookSurfacePack{
		Name:     "scheduling-pack",
		Verifier: extensionVerifier{},
		Handler:  inbound.ForSurface(inbound.SurfaceScheduling, handler),
	}
	if err := hooks.RegisterWebhookPack(pack); err != nil {
		t.Fatalf("register webhook pack: %v", err)
	}
	if err := hooks.RegisterWebhookPack(pack); err == nil {
		t.Fatalf("expected duplicate webhook pack registration error")
	}

	dispatcher := inbound.NewDispatcher(inbound.NewInMemoryClaimStore())
	if err := hooks.ApplyWebhookPacks(dispatcher); err != nil {
		t.Fatalf("apply webhook packs: %v", err)
	}

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "calprovider",
		Surface:    inbound.SurfaceScheduling,
		Headers:    map[string]string{"x-delivery-id": "dlv-1"},
		Body:       []byte(`{"kind":"BOOKING_CREATED"}`),
	})
	if err != nil {
		t.Fatalf("dispatch through registered pack: %v", err)
	}
	if !result.Accepted || handler.calls != 1 {
		t.Fatalf("expected pack handler to run once, got result=%#v calls=%d", result, handler.calls)
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("console_bundle", func(service CommandQueryService) (any, error) {
		return map[string]any{
			"disconnect_fn": service.Disconnect,
			"plan_fn":       service.PlanRefreshes,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("console_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}
	if names := hooks.BundleNames(); len(names) != 1 || names[0] != "console_bundle" {
		t.Fatalf("unexpected bundle names: %#v", names)
	}

	svc := newStubFacadeService()
	bundles, err := hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %d", len(bundles))
	}
	if _, ok := bundles["console_bundle"]; !ok {
		t.Fatalf("expected console_bundle entry in built bundles")
	}
}

func TestExtensionHooks_RejectsIncompletePacks(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterWebhookPack(WebhookSurfacePack{Name: "no-verifier", Handler: &extensionWebhookHandler{}}); err == nil {
		t.Fatalf("expected missing verifier error")
	}
	if err := hooks.RegisterWebhookPack(WebhookSurfacePack{Name: "no-handler", Verifier: extensionVerifier{}}); err == nil {
		t.Fatalf("expected missing handler error")
	}
	if err := hooks.RegisterWebhookPack(WebhookSurfacePack{Verifier: extensionVerifier{}, Handler: &extensionWebhookHandler{}}); err == nil {
		t.Fatalf("expected missing name error")
	}
}

type extensionVerifier struct{}

func (extensionVerifier) Verify(context.Context, core.InboundRequest) error { return nil }

type extensionWebhookHandler struct {
	calls int
}

func (h *extensionWebhookHandler) Surface() string { return inbound.SurfaceScheduling }

func (h *extensionWebhookHandler) Handle(context.Context, core.InboundRequest) (core.InboundResult, error) {
	h.calls++
	return core.InboundResult{Accepted: true, StatusCode: 200}, nil
}
