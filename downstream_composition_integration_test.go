package bookings_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	bookings "github.com/goliatone/go-bookings"
	bookingscommand "github.com/goliatone/go-bookings/command"
	"github.com/goliatone/go-bookings/core"
	bookingmigrations "github.com/goliatone/go-bookings/migrations"
	bookingsquery "github.com/goliatone/go-bookings/query"
	"github.com/goliatone/go-bookings/reconcile"
	"github.com/goliatone/go-bookings/security"
	sqlstore "github.com/goliatone/go-bookings/store/sql"
)

// The downstream composition test drives the module the way a host
// application would: sqlite-backed stores with encrypted token payloads, the
// credential service composed through the public options, and the whole
// booking flow exercised through facade commands and queries only.
func TestDownstreamComposition_BookingFlowThroughFacade(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newCompositionSQLiteClient(t)
	defer cleanup()

	secrets, err := security.NewAppKeySecretProviderFromString("composition-test-key")
	if err != nil {
		t.Fatalf("new app key secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client,
		sqlstore.WithSecretProvider(secrets, secrets.KeyID()))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	exchange := &compositionExchange{}
	svc, err := bookings.NewService(bookings.DefaultConfig(),
		bookings.WithPersistenceClient(client),
		bookings.WithRepositoryFactory(factory),
		bookings.WithSecretProvider(secrets),
		bookings.WithRefreshExchange(exchange),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	facade, err := bookings.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	// connect a mentor whose token is about to expire
	expiresAt := time.Now().UTC().Add(5 * time.Minute)
	if _, err := svc.Dependencies().CredentialStore.Save(ctx, core.MentorCredential{
		MentorID:     "mentor-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    &expiresAt,
	}); err != nil {
		t.Fatalf("save credential: %v", err)
	}

	token, err := svc.EnsureAccessToken(ctx, "mentor-1")
	if err != nil {
		t.Fatalf("ensure access token: %v", err)
	}
	if token != "access-new" || exchange.calls != 1 {
		t.Fatalf("expected refreshed token through exchange, got %q (calls=%d)", token, exchange.calls)
	}

	// checkout creates the pending booking with the opaque correlation ref
	createCollector := gocmd.NewResult[core.Booking]()
	createCtx := gocmd.ContextWithResult(ctx, createCollector)
	if err := facade.Commands().CreateBooking.Execute(createCtx, bookingscommand.CreateBookingMessage{
		Input: core.CreateBookingInput{
			MentorID:    "mentor-1",
			ServiceID:   "svc-essay",
			Client:      core.ClientIdentity{GuestName: "Jordan", GuestEmail: "jordan@example.test"},
			SessionDate: "2026-09-12",
			SessionTime: "15:00",
			BookingRef:  "bref-composed-1",
		},
	}); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	created, ok := createCollector.Load()
	if !ok || created.Status != core.BookingStatusPendingPayment {
		t.Fatalf("expected pending booking, got %#v (ok=%v)", created, ok)
	}

	// payment webhook lands first and confirms the booking
	payCollector := gocmd.NewResult[reconcile.Result]()
	payCtx := gocmd.ContextWithResult(ctx, payCollector)
	if err := facade.Commands().ApplyPaymentEvent.Execute(payCtx, bookingscommand.ApplyPaymentEventMessage{
		ProviderID: "payprovider",
		Event:      reconcile.PaymentSucceeded{PaymentRef: "pay-1", BookingRef: "bref-composed-1"},
	}); err != nil {
		t.Fatalf("apply payment event: %v", err)
	}
	if result, ok := payCollector.Load(); !ok || result.Outcome != reconcile.OutcomeApplied {
		t.Fatalf("expected applied payment outcome, got %#v (ok=%v)", result, ok)
	}

	// the scheduling leg arrives later and attaches its reference
	schedCollector := gocmd.NewResult[reconcile.Result]()
	schedCtx := gocmd.ContextWithResult(ctx, schedCollector)
	if err := facade.Commands().ApplySchedulingEvent.Execute(schedCtx, bookingscommand.ApplySchedulingEventMessage{
		ProviderID: "calprovider",
		Event: reconcile.BookingCreated{
			SchedulingEventRef: "cal-evt-1",
			BookingRef:         "bref-composed-1",
			MentorIDHint:       "mentor-1",
			ServiceIDHint:      "svc-essay",
		},
	}); err != nil {
		t.Fatalf("apply scheduling event: %v", err)
	}
	if result, ok := schedCollector.Load(); !ok || result.Outcome != reconcile.OutcomeApplied {
		t.Fatalf("expected applied scheduling outcome, got %#v (ok=%v)", result, ok)
	}

	booking, err := facade.Queries().GetBooking.Query(ctx, bookingsquery.GetBookingMessage{
		BookingRef: "bref-composed-1",
	})
	if err != nil {
		t.Fatalf("query booking: %v", err)
	}
	if booking.Status != core.BookingStatusConfirmed {
		t.Fatalf("expected confirmed booking, got %s", booking.Status)
	}
	if booking.PaymentRef != "pay-1" || booking.SchedulingEventRef != "cal-evt-1" {
		t.Fatalf("expected both provider references attached, got %#v", booking)
	}

	state, err := facade.Queries().GetCredentialState.Query(ctx, bookingsquery.GetCredentialStateMessage{
		MentorID: "mentor-1",
	})
	if err != nil {
		t.Fatalf("query credential state: %v", err)
	}
	if !state.Connected || state.NeedsReconnect {
		t.Fatalf("expected healthy credential state, got %#v", state)
	}
}

type compositionExchange struct {
	calls int
}

func (e *compositionExchange) Refresh(_ context.Context, refreshToken string) (core.TokenExchangeResult, error) {
	e.calls++
	if refreshToken != "refresh-old" {
		return core.TokenExchangeResult{}, fmt.Errorf("unexpected refresh token %q", refreshToken)
	}
	return core.TokenExchangeResult{
		AccessToken:  "access-new",
		RefreshToken: "refresh-new",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}, nil
}

type compositionPersistenceConfig struct {
	driver string
	server string
}

func (c compositionPersistenceConfig) GetDebug() bool { return false }

func (c compositionPersistenceConfig) GetDriver() string { return c.driver }

func (c compositionPersistenceConfig) GetServer() string { return c.server }

func (c compositionPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }

func (c compositionPersistenceConfig) GetOtelIdentifier() string { return "go-bookings-tests" }

func newCompositionSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:bookings-composition-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := compositionPersistenceConfig{driver: "sqlite3", server: dsn}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = bookingmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != bookingmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, bookingmigrations.WithDialects(bookingmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
		_ = sqlDB.Close()
	}
}
