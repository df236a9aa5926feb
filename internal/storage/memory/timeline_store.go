package memory

import (
	"context"
	"sync"

	"deriverse-analytics/internal/domain"
)

// TimelineStore is an in-memory implementation of storage.TimelineStore.
type TimelineStore struct {
	mu     sync.RWMutex
	events map[string][]*domain.TimelineEvent
}

func NewTimelineStore() *TimelineStore {
	return &TimelineStore{events: make(map[string][]*domain.TimelineEvent)}
}

func (s *TimelineStore) Append(ctx context.Context, wallet string, events []*domain.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		cp := *ev
		s.events[wallet] = append(s.events[wallet], &cp)
	}
	return nil
}

// Events returns the stored events for a wallet in append order.
func (s *TimelineStore) Events(wallet string) []*domain.TimelineEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.TimelineEvent(nil), s.events[wallet]...)
}
