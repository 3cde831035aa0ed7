package models

import (
	"time"

	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

// Attendee is an organization-scoped identity, independent of any event.
type Attendee struct {
	ID        id.AttendeeID `json:"_id"`
	OrgID     id.OrgID      `json:"organizationId"`
	Email     string        `json:"email"`
	Values    form.ValueSet `json:"registrationData"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// EventUser links an attendee to one event.
type EventUser struct {
	ID           id.EventUserID `json:"_id"`
	EventID      id.EventID     `json:"eventId"`
	AttendeeID   id.AttendeeID  `json:"attendeeId"`
	SessionID    id.SessionID   `json:"firebaseUID,omitempty"`
	Attended     bool           `json:"attended"`
	RegisteredAt time.Time      `json:"registeredAt"`
}

// MatchKind classifies the outcome of an identifier lookup.
type MatchKind string

const (
	MatchNotFound        MatchKind = "not_found"
	MatchInvalidFields   MatchKind = "invalid_fields"
	MatchOrgOnly         MatchKind = "org_only"
	MatchEventRegistered MatchKind = "event_registered"
)

func (k MatchKind) String() string { return string(k) }

// MatchResult is exactly one of the four lookup outcomes. Use the
// constructors; the zero value is not a valid result.
type MatchResult struct {
	Kind       MatchKind
	Mismatched []string
	Attendee   *Attendee
	EventUser  *EventUser
	Reason     string
}

func NotFound() MatchResult {
	return MatchResult{Kind: MatchNotFound}
}

// InvalidFields reports a partial match; mismatched lists the identifier
// fields that disagree with the stored attendee.
func InvalidFields(mismatched ...string) MatchResult {
	return MatchResult{Kind: MatchInvalidFields, Mismatched: mismatched}
}

func OrgOnly(attendee *Attendee) MatchResult {
	return MatchResult{Kind: MatchOrgOnly, Attendee: attendee}
}

func EventRegistered(attendee *Attendee, eventUser *EventUser) MatchResult {
	return MatchResult{Kind: MatchEventRegistered, Attendee: attendee, EventUser: eventUser}
}

// Valid reports whether the result carries what its kind requires.
func (r MatchResult) Valid() bool {
	switch r.Kind {
	case MatchNotFound:
		return true
	case MatchInvalidFields:
		return len(r.Mismatched) > 0
	case MatchOrgOnly:
		return r.Attendee != nil
	case MatchEventRegistered:
		return r.Attendee != nil && r.EventUser != nil
	}
	return false
}

// IsMismatched reports whether fieldID is among the mismatched identifiers.
func (r MatchResult) IsMismatched(fieldID string) bool {
	for _, f := range r.Mismatched {
		if f == fieldID {
			return true
		}
	}
	return false
}

// MatchRequest looks up an attendee by identifier values. An empty EventID
// scopes the lookup to the organization.
type MatchRequest struct {
	OrgID       id.OrgID
	EventID     id.EventID
	Identifiers form.ValueSet
}

func (r MatchRequest) OrgScoped() bool { return r.EventID == "" }

// RegisterRequest creates the attendee when needed and registers it for the
// event. A non-empty SessionID links the registration to that session.
type RegisterRequest struct {
	OrgID     id.OrgID
	EventID   id.EventID
	Email     string
	Values    form.ValueSet
	SessionID id.SessionID
}

// Registration is what a register call produced.
type Registration struct {
	Attendee  *Attendee
	EventUser *EventUser
}

// UpdateRequest replaces an attendee's registration data.
type UpdateRequest struct {
	AttendeeID id.AttendeeID
	Email      string
	Values     form.ValueSet
}

// AssociateRequest links a session to an existing event registration.
type AssociateRequest struct {
	OrgID     id.OrgID
	EventID   id.EventID
	Email     string
	SessionID id.SessionID
}
