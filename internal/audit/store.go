package audit

import (
	"context"
	"sync"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

// Store persists audit events. It is append-only.
type Store interface {
	Append(ctx context.Context, events ...Event) error
	ListByVisit(ctx context.Context, visitID id.VisitID) ([]Event, error)
}

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.VisitID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.VisitID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events[e.VisitID] = append(s.events[e.VisitID], e)
	}
	return nil
}

func (s *InMemoryStore) ListByVisit(_ context.Context, visitID id.VisitID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[visitID]...), nil
}
