package store

import (
	"context"
	"sort"
	"sync"

	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

// InMemoryAttendeeStore keeps attendees in memory. Returned records are
// copies, so callers cannot mutate stored state.
type InMemoryAttendeeStore struct {
	mu        sync.RWMutex
	attendees map[id.AttendeeID]*models.Attendee
	byEmail   map[emailKey]id.AttendeeID
}

type emailKey struct {
	org   id.OrgID
	email string
}

func NewInMemoryAttendeeStore() *InMemoryAttendeeStore {
	return &InMemoryAttendeeStore{
		attendees: make(map[id.AttendeeID]*models.Attendee),
		byEmail:   make(map[emailKey]id.AttendeeID),
	}
}

func (s *InMemoryAttendeeStore) FindByID(_ context.Context, attendeeID id.AttendeeID) (*models.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attendees[attendeeID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAttendee(a), nil
}

func (s *InMemoryAttendeeStore) FindByEmail(_ context.Context, orgID id.OrgID, email string) (*models.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attendeeID, ok := s.byEmail[emailKey{org: orgID, email: email}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAttendee(s.attendees[attendeeID]), nil
}

func (s *InMemoryAttendeeStore) ListByOrg(_ context.Context, orgID id.OrgID) ([]*models.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attendee
	for _, a := range s.attendees {
		if a.OrgID == orgID {
			out = append(out, copyAttendee(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Save inserts or replaces an attendee. Saving a second attendee with an
// email already used in the organization is a conflict.
func (s *InMemoryAttendeeStore) Save(_ context.Context, attendee *models.Attendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey{org: attendee.OrgID, email: attendee.Email}
	if attendee.Email != "" {
		if owner, ok := s.byEmail[key]; ok && owner != attendee.ID {
			return sentinel.ErrConflict
		}
	}
	if prev, ok := s.attendees[attendee.ID]; ok {
		delete(s.byEmail, emailKey{org: prev.OrgID, email: prev.Email})
	}
	s.attendees[attendee.ID] = copyAttendee(attendee)
	if attendee.Email != "" {
		s.byEmail[key] = attendee.ID
	}
	return nil
}

// InMemoryEventUserStore keeps event registrations in memory.
type InMemoryEventUserStore struct {
	mu    sync.RWMutex
	users map[eventUserKey]*models.EventUser
}

type eventUserKey struct {
	event    id.EventID
	attendee id.AttendeeID
}

func NewInMemoryEventUserStore() *InMemoryEventUserStore {
	return &InMemoryEventUserStore{users: make(map[eventUserKey]*models.EventUser)}
}

func (s *InMemoryEventUserStore) Find(_ context.Context, eventID id.EventID, attendeeID id.AttendeeID) (*models.EventUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eu, ok := s.users[eventUserKey{event: eventID, attendee: attendeeID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *eu
	return &cp, nil
}

func (s *InMemoryEventUserStore) ListByEvent(_ context.Context, eventID id.EventID) ([]*models.EventUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.EventUser
	for k, eu := range s.users {
		if k.event == eventID {
			cp := *eu
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *InMemoryEventUserStore) Save(_ context.Context, eventUser *models.EventUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *eventUser
	s.users[eventUserKey{event: eventUser.EventID, attendee: eventUser.AttendeeID}] = &cp
	return nil
}

func copyAttendee(a *models.Attendee) *models.Attendee {
	cp := *a
	cp.Values = a.Values.Clone()
	return &cp
}
