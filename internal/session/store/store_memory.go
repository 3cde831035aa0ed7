package store

import (
	"context"
	"sync"
	"time"

	"github.com/genialityco/gen-live-web-sub000/internal/session/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

// InMemory keeps bindings in memory. Expired bindings read as missing.
type InMemory struct {
	mu       sync.RWMutex
	bindings map[id.DeviceID]*models.Binding
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{bindings: make(map[id.DeviceID]*models.Binding), now: time.Now}
}

func (s *InMemory) Get(_ context.Context, device id.DeviceID) (*models.Binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[device]
	if !ok || b.IsExpired(s.now()) {
		return nil, ErrNotFound
	}
	return copyBinding(b), nil
}

func (s *InMemory) Create(_ context.Context, binding *models.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bindings[binding.DeviceID]; ok && !b.IsExpired(s.now()) {
		return sentinel.ErrConflict
	}
	s.bindings[binding.DeviceID] = copyBinding(binding)
	return nil
}

func (s *InMemory) AddEmail(_ context.Context, device id.DeviceID, email string) (*models.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[device]
	if !ok || b.IsExpired(s.now()) {
		return nil, ErrNotFound
	}
	if !b.HasEmail(email) {
		b.Emails = append(b.Emails, email)
	}
	return copyBinding(b), nil
}

func (s *InMemory) Delete(_ context.Context, device id.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, device)
	return nil
}

func copyBinding(b *models.Binding) *models.Binding {
	cp := *b
	cp.Emails = append([]string(nil), b.Emails...)
	return &cp
}
