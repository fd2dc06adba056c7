package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryReplayLedgerClaim(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryReplayLedger(time.Minute)
	current := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return current }

	claimed, err := ledger.Claim(ctx, "delivery-1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, claimed=%t err=%v", claimed, err)
	}

	claimed, err = ledger.Claim(ctx, "delivery-1", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected duplicate claim to be rejected")
	}

	current = current.Add(2 * time.Minute)
	claimed, err = ledger.Claim(ctx, "delivery-1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected claim after expiry, claimed=%t err=%v", claimed, err)
	}
}

func TestMemoryReplayLedgerRequiresKey(t *testing.T) {
	ledger := NewMemoryReplayLedger(time.Minute)
	if _, err := ledger.Claim(context.Background(), "  ", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestMemoryReplayLedgerEvictsAtCapacity(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryReplayLedgerWithLimits(time.Hour, 4)
	current := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return current }

	for i := 0; i < 8; i++ {
		current = current.Add(time.Second)
		if claimed, err := ledger.Claim(ctx, fmt.Sprintf("key-%d", i), time.Hour); err != nil || !claimed {
			t.Fatalf("claim %d failed: claimed=%t err=%v", i, claimed, err)
		}
	}
	if len(ledger.entries) > 4 {
		t.Fatalf("expected capacity enforcement, got %d entries", len(ledger.entries))
	}
	// the most recent key survives eviction
	if claimed, _ := ledger.Claim(ctx, "key-7", time.Hour); claimed {
		t.Fatalf("expected newest key to still be claimed")
	}
}
