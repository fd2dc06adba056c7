package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-bookings/core"
)

type memoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]*DeliveryRecord
	nextID  int
}

func newMemoryDeliveryLedger() *memoryDeliveryLedger {
	return &memoryDeliveryLedger{records: map[string]*DeliveryRecord{}}
}

func (l *memoryDeliveryLedger) key(providerID, deliveryID string) string {
	return providerID + ":" + deliveryID
}

func (l *memoryDeliveryLedger) Claim(_ context.Context, providerID, deliveryID string, _ []byte, _ time.Duration) (DeliveryRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.key(providerID, deliveryID)
	if record, ok := l.records[key]; ok {
		if record.Status == DeliveryStatusProcessed || record.Status == DeliveryStatusProcessing {
			return *record, false, nil
		}
		record.Status = DeliveryStatusProcessing
		record.Attempts++
		return *record, true, nil
	}
	l.nextID++
	record := &DeliveryRecord{
		ID:         fmt.Sprintf("rec-%d", l.nextID),
		ClaimID:    fmt.Sprintf("claim-%d", l.nextID),
		ProviderID: providerID,
		DeliveryID: deliveryID,
		Status:     DeliveryStatusProcessing,
		Attempts:   1,
	}
	l.records[key] = record
	return *record, true, nil
}

func (l *memoryDeliveryLedger) Get(_ context.Context, providerID, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[l.key(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("delivery not found")
	}
	return *record, nil
}

func (l *memoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range l.records {
		if record.ClaimID == claimID {
			record.Status = DeliveryStatusProcessed
			return nil
		}
	}
	return fmt.Errorf("claim not found")
}

func (l *memoryDeliveryLedger) Fail(_ context.Context, claimID string, _ error, nextAttemptAt time.Time, maxAttempts int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range l.records {
		if record.ClaimID == claimID {
			if record.Attempts >= maxAttempts {
				record.Status = DeliveryStatusDead
				return nil
			}
			record.Status = DeliveryStatusRetryReady
			record.NextAttemptAt = &nextAttemptAt
			return nil
		}
	}
	return fmt.Errorf("claim not found")
}

type allowVerifier struct{}

func (allowVerifier) Verify(context.Context, core.InboundRequest) error { return nil }

type denyVerifier struct{}

func (denyVerifier) Verify(context.Context, core.InboundRequest) error {
	return fmt.Errorf("webhooks: signature verification failed")
}

type countingHandler struct {
	mu     sync.Mutex
	calls  int
	result core.InboundResult
	err    error
}

func (h *countingHandler) Handle(context.Context, core.InboundRequest) (core.InboundResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return core.InboundResult{}, h.err
	}
	return h.result, nil
}

func (h *countingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func inboundWithDelivery(deliveryID string) core.InboundRequest {
	return core.InboundRequest{
		ProviderID: "scheduling",
		Surface:    "scheduling",
		Headers:    map[string]string{"X-Delivery-Id": deliveryID},
		Body:       []byte(`{}`),
	}
}

func TestProcessorRejectsUnverifiedDelivery(t *testing.T) {
	ledger := newMemoryDeliveryLedger()
	handler := &countingHandler{}
	processor := NewProcessor(denyVerifier{}, ledger, handler)

	result, err := processor.Process(context.Background(), inboundWithDelivery("d1"))
	if err == nil {
		t.Fatalf("expected verification error")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}
	if handler.callCount() != 0 {
		t.Fatalf("handler must not run on rejected delivery")
	}
	if len(ledger.records) != 0 {
		t.Fatalf("rejected delivery must not be claimed")
	}
}

func TestProcessorDedupesReplays(t *testing.T) {
	ledger := newMemoryDeliveryLedger()
	handler := &countingHandler{result: core.InboundResult{Accepted: true, StatusCode: http.StatusOK}}
	processor := NewProcessor(allowVerifier{}, ledger, handler)

	ctx := context.Background()
	if _, err := processor.Process(ctx, inboundWithDelivery("d1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := processor.Process(ctx, inboundWithDelivery("d1"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if deduped, _ := result.Metadata["deduped"].(bool); !deduped {
		t.Fatalf("expected replay to be deduped, got %+v", result.Metadata)
	}
	if handler.callCount() != 1 {
		t.Fatalf("expected single handler run, got %d", handler.callCount())
	}
}

func TestProcessorMarksFailedDeliveryForRetry(t *testing.T) {
	ledger := newMemoryDeliveryLedger()
	handler := &countingHandler{err: fmt.Errorf("downstream unavailable")}
	processor := NewProcessor(allowVerifier{}, ledger, handler)

	ctx := context.Background()
	if _, err := processor.Process(ctx, inboundWithDelivery("d1")); err == nil {
		t.Fatalf("expected handler error")
	}
	record, err := ledger.Get(ctx, "scheduling", "d1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != DeliveryStatusRetryReady {
		t.Fatalf("expected retry_ready, got %s", record.Status)
	}
	if record.NextAttemptAt == nil {
		t.Fatalf("expected next attempt time")
	}

	// retry succeeds and completes the record
	handler.err = nil
	handler.result = core.InboundResult{Accepted: true, StatusCode: http.StatusOK}
	if _, err := processor.Process(ctx, inboundWithDelivery("d1")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	record, _ = ledger.Get(ctx, "scheduling", "d1")
	if record.Status != DeliveryStatusProcessed {
		t.Fatalf("expected processed after retry, got %s", record.Status)
	}
}

func TestProcessorRequiresDeliveryID(t *testing.T) {
	processor := NewProcessor(allowVerifier{}, newMemoryDeliveryLedger(), &countingHandler{})
	req := core.InboundRequest{ProviderID: "scheduling", Body: []byte(`{}`)}
	if _, err := processor.Process(context.Background(), req); err == nil || !strings.Contains(err.Error(), "delivery id") {
		t.Fatalf("expected delivery id error, got %v", err)
	}
}

var _ DeliveryLedger = (*memoryDeliveryLedger)(nil)
