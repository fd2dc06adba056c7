package adapters_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-bookings/adapters/gocommand"
	"github.com/goliatone/go-bookings/adapters/gojob"
	"github.com/goliatone/go-bookings/adapters/gologger"
	bookingscommand "github.com/goliatone/go-bookings/command"
	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/inbound"
	"github.com/goliatone/go-bookings/reconcile"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("bookings", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	enqueueAdapter := gojob.NewEnqueuerAdapter(enqueueProbe)
	if err := enqueueAdapter.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          core.JobIDCredentialRefresh,
		Parameters:     map[string]any{"mentor_id": "mentor-1"},
		IdempotencyKey: core.JobIDCredentialRefresh + ":mentor-1",
		DedupPolicy:    "drop",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != core.JobIDCredentialRefresh {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("bookings.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_WebhookDispatchThroughCommandWrappers(t *testing.T) {
	svc := &compatCredentialService{}
	applier := &compatEventApplier{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	disconnectSub, err := gocommand.RegisterAndSubscribe(adapter, bookingscommand.NewDisconnectCredentialCommand(svc))
	if err != nil {
		t.Fatalf("register disconnect wrapper: %v", err)
	}
	defer disconnectSub.Unsubscribe()

	paymentSub, err := gocommand.RegisterAndSubscribe(adapter, bookingscommand.NewApplyPaymentEventCommand(applier))
	if err != nil {
		t.Fatalf("register payment wrapper: %v", err)
	}
	defer paymentSub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	if err := gocommand.Dispatch(context.Background(), bookingscommand.DisconnectCredentialMessage{MentorID: "mentor-1"}); err != nil {
		t.Fatalf("dispatch disconnect: %v", err)
	}
	if svc.disconnectCalls != 1 || svc.lastMentorID != "mentor-1" {
		t.Fatalf("expected disconnect wrapper invocation")
	}

	dispatcher := inbound.NewDispatcher(inbound.NewInMemoryClaimStore())
	verifier := compatVerifier{}
	handler := inbound.ForSurface(inbound.SurfacePayments, compatWebhookHandler{
		run: func(ctx context.Context, req core.InboundRequest) error {
			return gocommand.Dispatch(ctx, bookingscommand.ApplyPaymentEventMessage{
				ProviderID: req.ProviderID,
				Event: reconcile.PaymentSucceeded{
					PaymentRef: metadataString(req.Metadata, "payment_ref"),
					BookingRef: metadataString(req.Metadata, "booking_ref"),
				},
			})
		},
	})
	if err := dispatcher.Register(verifier, handler); err != nil {
		t.Fatalf("register payments inbound handler: %v", err)
	}

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "payments",
		Surface:    inbound.SurfacePayments,
		Body:       []byte(`{}`),
		Metadata: map[string]any{
			"idempotency_key": "evt-1",
			"payment_ref":     "pi_001",
			"booking_ref":     "bk_ref_1",
		},
	})
	if err != nil {
		t.Fatalf("dispatch payments inbound request: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("expected payments inbound request accepted")
	}
	if applier.applyCalls != 1 || applier.lastProviderID != "payments" {
		t.Fatalf("expected payment event to reach the reconciler wrapper")
	}

	// Redelivery with the same idempotency key claims once.
	replay, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{
		ProviderID: "payments",
		Surface:    inbound.SurfacePayments,
		Body:       []byte(`{}`),
		Metadata: map[string]any{
			"idempotency_key": "evt-1",
			"payment_ref":     "pi_001",
			"booking_ref":     "bk_ref_1",
		},
	})
	if err != nil {
		t.Fatalf("dispatch replayed inbound request: %v", err)
	}
	if !replay.Accepted {
		t.Fatalf("expected replay to be accepted without reprocessing")
	}
	if applier.applyCalls != 1 {
		t.Fatalf("expected replayed delivery to dedupe, got %d applications", applier.applyCalls)
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "bookings.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type compatCredentialService struct {
	disconnectCalls int
	lastMentorID    string
}

func (s *compatCredentialService) Refresh(context.Context, string) (core.MentorCredential, error) {
	return core.MentorCredential{}, fmt.Errorf("unexpected Refresh call")
}

func (s *compatCredentialService) ForceRefresh(context.Context, string) (string, error) {
	return "", fmt.Errorf("unexpected ForceRefresh call")
}

func (s *compatCredentialService) Disconnect(_ context.Context, mentorID string) error {
	s.disconnectCalls++
	s.lastMentorID = mentorID
	return nil
}

func (s *compatCredentialService) PlanRefreshes(context.Context) (int, error) {
	return 0, fmt.Errorf("unexpected PlanRefreshes call")
}

type compatEventApplier struct {
	applyCalls     int
	lastProviderID string
}

func (s *compatEventApplier) Apply(_ context.Context, providerID string, _ reconcile.Event) (reconcile.Result, error) {
	s.applyCalls++
	s.lastProviderID = providerID
	return reconcile.Result{Outcome: reconcile.OutcomeApplied}, nil
}

type compatVerifier struct{}

func (compatVerifier) Verify(context.Context, core.InboundRequest) error { return nil }

type compatWebhookHandler struct {
	run func(ctx context.Context, req core.InboundRequest) error
}

func (h compatWebhookHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if err := h.run(ctx, req); err != nil {
		return core.InboundResult{}, err
	}
	return core.InboundResult{Accepted: true, StatusCode: 202}, nil
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}
