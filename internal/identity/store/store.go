// Package store persists attendees and their event registrations.
package store

import (
	"context"

	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = sentinel.ErrNotFound

// AttendeeStore persists organization-scoped attendees. Emails are stored
// normalized and are unique per organization.
type AttendeeStore interface {
	FindByID(ctx context.Context, attendeeID id.AttendeeID) (*models.Attendee, error)
	FindByEmail(ctx context.Context, orgID id.OrgID, email string) (*models.Attendee, error)
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Attendee, error)
	Save(ctx context.Context, attendee *models.Attendee) error
}

// EventUserStore persists event registrations, unique per (event, attendee).
type EventUserStore interface {
	Find(ctx context.Context, eventID id.EventID, attendeeID id.AttendeeID) (*models.EventUser, error)
	ListByEvent(ctx context.Context, eventID id.EventID) ([]*models.EventUser, error)
	Save(ctx context.Context, eventUser *models.EventUser) error
}
