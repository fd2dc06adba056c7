package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/reconcile"
)

type stubCredentialService struct {
	refreshFn       func(ctx context.Context, mentorID string) (core.MentorCredential, error)
	forceRefreshFn  func(ctx context.Context, mentorID string) (string, error)
	disconnectFn    func(ctx context.Context, mentorID string) error
	planRefreshesFn func(ctx context.Context) (int, error)
}

func (s stubCredentialService) Refresh(ctx context.Context, mentorID string) (core.MentorCredential, error) {
	if s.refreshFn == nil {
		return core.MentorCredential{}, fmt.Errorf("unexpected Refresh call")
	}
	return s.refreshFn(ctx, mentorID)
}

func (s stubCredentialService) ForceRefresh(ctx context.Context, mentorID string) (string, error) {
	if s.forceRefreshFn == nil {
		return "", fmt.Errorf("unexpected ForceRefresh call")
	}
	return s.forceRefreshFn(ctx, mentorID)
}

func (s stubCredentialService) Disconnect(ctx context.Context, mentorID string) error {
	if s.disconnectFn == nil {
		return fmt.Errorf("unexpected Disconnect call")
	}
	return s.disconnectFn(ctx, mentorID)
}

func (s stubCredentialService) PlanRefreshes(ctx context.Context) (int, error) {
	if s.planRefreshesFn == nil {
		return 0, fmt.Errorf("unexpected PlanRefreshes call")
	}
	return s.planRefreshesFn(ctx)
}

type stubBookingCreator struct {
	createFn func(ctx context.Context, in core.CreateBookingInput) (core.Booking, error)
}

func (s stubBookingCreator) Create(ctx context.Context, in core.CreateBookingInput) (core.Booking, error) {
	return s.createFn(ctx, in)
}

type stubEventApplier struct {
	applyFn func(ctx context.Context, providerID string, event reconcile.Event) (reconcile.Result, error)
}

func (s stubEventApplier) Apply(ctx context.Context, providerID string, event reconcile.Event) (reconcile.Result, error) {
	return s.applyFn(ctx, providerID, event)
}

func TestRefreshCredentialCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expiresAt := time.Now().UTC().Add(time.Hour)
	expected := core.MentorCredential{MentorID: "mentor-1", AccessToken: "at-new", ExpiresAt: &expiresAt}

	called := false
	svc := stubCredentialService{
		refreshFn: func(_ context.Context, mentorID string) (core.MentorCredential, error) {
			called = true
			if mentorID != "mentor-1" {
				t.Fatalf("expected mentor-1, got %q", mentorID)
			}
			return expected, nil
		},
	}

	cmd := NewRefreshCredentialCommand(svc)
	collector := gocmd.NewResult[core.MentorCredential]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RefreshCredentialMessage{MentorID: "mentor-1"}); err != nil {
		t.Fatalf("execute refresh: %v", err)
	}
	if !called {
		t.Fatalf("expected refresh invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.AccessToken != expected.AccessToken {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRefreshCredentialCommand_ForceUsesForceRefresh(t *testing.T) {
	svc := stubCredentialService{
		forceRefreshFn: func(_ context.Context, mentorID string) (string, error) {
			if mentorID != "mentor-1" {
				t.Fatalf("expected mentor-1, got %q", mentorID)
			}
			return "at-forced", nil
		},
	}

	cmd := NewRefreshCredentialCommand(svc)
	collector := gocmd.NewResult[string]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RefreshCredentialMessage{MentorID: "mentor-1", Force: true}); err != nil {
		t.Fatalf("execute force refresh: %v", err)
	}
	token, ok := collector.Load()
	if !ok || token != "at-forced" {
		t.Fatalf("expected forced token result, got %q (%v)", token, ok)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("disconnect", func(t *testing.T) {
		called := false
		svc := stubCredentialService{
			disconnectFn: func(_ context.Context, mentorID string) error {
				called = true
				if mentorID != "mentor-9" {
					t.Fatalf("unexpected mentor id %q", mentorID)
				}
				return nil
			},
		}
		cmd := NewDisconnectCredentialCommand(svc)
		if err := cmd.Execute(context.Background(), DisconnectCredentialMessage{MentorID: "mentor-9"}); err != nil {
			t.Fatalf("execute disconnect: %v", err)
		}
		if !called {
			t.Fatalf("expected disconnect invocation")
		}
	})

	t.Run("plan refreshes", func(t *testing.T) {
		svc := stubCredentialService{
			planRefreshesFn: func(_ context.Context) (int, error) {
				return 3, nil
			},
		}
		cmd := NewPlanRefreshesCommand(svc)
		collector := gocmd.NewResult[int]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, PlanRefreshesMessage{}); err != nil {
			t.Fatalf("execute plan refreshes: %v", err)
		}
		if planned, ok := collector.Load(); !ok || planned != 3 {
			t.Fatalf("expected 3 planned refreshes, got %d (%v)", planned, ok)
		}
	})

	t.Run("create booking", func(t *testing.T) {
		store := stubBookingCreator{
			createFn: func(_ context.Context, in core.CreateBookingInput) (core.Booking, error) {
				if in.MentorID != "mentor-1" || in.ServiceID != "svc-essay" {
					t.Fatalf("unexpected input: %#v", in)
				}
				return core.Booking{ID: "bk-1", Status: core.BookingStatusPendingPayment}, nil
			},
		}
		cmd := NewCreateBookingCommand(store)
		collector := gocmd.NewResult[core.Booking]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		msg := CreateBookingMessage{Input: core.CreateBookingInput{
			MentorID:  "mentor-1",
			ServiceID: "svc-essay",
			Client:    core.ClientIdentity{GuestName: "Jamie", GuestEmail: "jamie@example.com"},
		}}
		if err := cmd.Execute(ctx, msg); err != nil {
			t.Fatalf("execute create booking: %v", err)
		}
		booking, ok := collector.Load()
		if !ok || booking.ID != "bk-1" {
			t.Fatalf("expected stored booking, got %#v (%v)", booking, ok)
		}
	})
}

func TestApplyEventCommands_DelegateToReconciler(t *testing.T) {
	applier := stubEventApplier{
		applyFn: func(_ context.Context, providerID string, event reconcile.Event) (reconcile.Result, error) {
			if providerID != "scheduling" {
				t.Fatalf("unexpected provider %q", providerID)
			}
			if event.Kind() != "booking_created" {
				t.Fatalf("unexpected event kind %q", event.Kind())
			}
			return reconcile.Result{Outcome: reconcile.OutcomeApplied}, nil
		},
	}

	cmd := NewApplySchedulingEventCommand(applier)
	collector := gocmd.NewResult[reconcile.Result]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	msg := ApplySchedulingEventMessage{
		ProviderID: "scheduling",
		Event:      reconcile.BookingCreated{SchedulingEventRef: "cal-1", BookingRef: "bk_ref_1"},
	}
	if err := cmd.Execute(ctx, msg); err != nil {
		t.Fatalf("execute apply scheduling event: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Outcome != reconcile.OutcomeApplied {
		t.Fatalf("expected applied outcome, got %#v (%v)", result, ok)
	}

	payments := stubEventApplier{
		applyFn: func(_ context.Context, providerID string, event reconcile.Event) (reconcile.Result, error) {
			if providerID != "payments" {
				t.Fatalf("unexpected provider %q", providerID)
			}
			return reconcile.Result{Outcome: reconcile.OutcomeAlreadyApplied}, nil
		},
	}
	payCmd := NewApplyPaymentEventCommand(payments)
	payMsg := ApplyPaymentEventMessage{
		ProviderID: "payments",
		Event:      reconcile.PaymentSucceeded{PaymentRef: "pi_1", BookingRef: "bk_ref_1"},
	}
	if err := payCmd.Execute(context.Background(), payMsg); err != nil {
		t.Fatalf("execute apply payment event: %v", err)
	}
}

func TestCommandErrors_PassThroughFromService(t *testing.T) {
	svcErr := fmt.Errorf("provider rejected refresh token")
	svc := stubCredentialService{
		refreshFn: func(_ context.Context, _ string) (core.MentorCredential, error) {
			return core.MentorCredential{}, svcErr
		},
	}
	cmd := NewRefreshCredentialCommand(svc)
	if err := cmd.Execute(context.Background(), RefreshCredentialMessage{MentorID: "mentor-1"}); err != svcErr {
		t.Fatalf("expected service error pass-through, got %v", err)
	}
}
