package inbound

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
)

// ReplayClaimStore adapts a core.ReplayLedger into the ClaimStore contract
// for at-most-once surfaces. A claimed key stays claimed for the full TTL
// even when the handler fails, so a replayed delivery is dropped instead of
// retried. Use the redis ledger to get this behavior across processes.
type ReplayClaimStore struct {
	Ledger core.ReplayLedger
}

func NewReplayClaimStore(ledger core.ReplayLedger) (*ReplayClaimStore, error) {
	if ledger == nil {
		return nil, inboundBadInput("inbound: replay ledger is required", nil)
	}
	return &ReplayClaimStore{Ledger: ledger}, nil
}

func (s *ReplayClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.Ledger == nil {
		return "", false, inboundInternal("inbound: replay ledger is not configured", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: idempotency key is required", nil)
	}
	claimed, err := s.Ledger.Claim(ctx, key, lease)
	if err != nil {
		return "", false, err
	}
	if !claimed {
		return "", false, nil
	}
	return key, true, nil
}

// Complete is a no-op: the ledger entry already covers the key TTL.
func (s *ReplayClaimStore) Complete(_ context.Context, _ string) error {
	return nil
}

// Fail is a no-op: at-most-once surfaces drop replays within the TTL
// rather than reprocessing a failed delivery.
func (s *ReplayClaimStore) Fail(_ context.Context, _ string, _ error, _ time.Time) error {
	return nil
}

var _ ClaimStore = (*ReplayClaimStore)(nil)
