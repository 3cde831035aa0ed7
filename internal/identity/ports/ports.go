package ports

import (
	"context"

	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
)

// Resolver classifies identifier values against stored attendees. "No match"
// is a NotFound result, never an error; errors mean the lookup itself failed.
type Resolver interface {
	Resolve(ctx context.Context, req models.MatchRequest) (models.MatchResult, error)
}

// Registrar writes registrations.
type Registrar interface {
	// FindRegistration returns the attendee and, when registered, the event
	// user for identifiers. found is false when no attendee matches.
	FindRegistration(ctx context.Context, req models.MatchRequest) (reg models.Registration, found bool, err error)
	Register(ctx context.Context, req models.RegisterRequest) (models.Registration, error)
	UpdateRegistration(ctx context.Context, req models.UpdateRequest) (*models.Attendee, error)
	AssociateSession(ctx context.Context, req models.AssociateRequest) error
}

// Backend is the full registration backend.
type Backend interface {
	Resolver
	Registrar
}
