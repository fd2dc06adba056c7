package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bookings/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UnmatchedEventStore is the sink for verified events no booking could be
// correlated to. Rows are append-only.
type UnmatchedEventStore struct {
	db   *bun.DB
	repo repository.Repository[*unmatchedEventRecord]
}

func (s *UnmatchedEventStore) Record(ctx context.Context, event core.UnmatchedEvent) (core.UnmatchedEvent, error) {
	if s == nil || s.db == nil {
		return core.UnmatchedEvent{}, fmt.Errorf("sqlstore: unmatched event store is not configured")
	}
	if strings.TrimSpace(event.ProviderID) == "" || strings.TrimSpace(event.Kind) == "" {
		return core.UnmatchedEvent{}, fmt.Errorf("sqlstore: provider id and event kind are required")
	}

	record := newUnmatchedEventRecord(event, uuid.NewString(), time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.UnmatchedEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *UnmatchedEventStore) List(ctx context.Context, providerID string, limit int) ([]core.UnmatchedEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: unmatched event store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	query := s.db.NewSelect().
		Model((*unmatchedEventRecord)(nil)).
		Order("created_at DESC").
		Limit(limit)
	if providerID = strings.TrimSpace(providerID); providerID != "" {
		query = query.Where("?TableAlias.provider_id = ?", providerID)
	}

	records := []*unmatchedEventRecord{}
	if err := query.Scan(ctx, &records); err != nil {
		return nil, err
	}
	events := make([]core.UnmatchedEvent, 0, len(records))
	for _, record := range records {
		events = append(events, record.toDomain())
	}
	return events, nil
}
