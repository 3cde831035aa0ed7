package audit

import (
	"time"

	"github.com/google/uuid"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

// Action names what happened in a visit.
type Action string

const (
	ActionVisitStarted        Action = "visit_started"
	ActionFlowTransition      Action = "flow_transition"
	ActionIdentifiersVerified Action = "identifiers_verified"
	ActionSessionBound        Action = "session_bound"
	ActionSessionSignedOut    Action = "session_signed_out"
	ActionRegistrationSaved   Action = "registration_saved"
	ActionInputDropped        Action = "input_dropped"
	ActionVisitExpired        Action = "visit_expired"
)

// Event is emitted from the registration flow to capture key actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    Action
	VisitID   id.VisitID
	OrgID     id.OrgID
	EventID   id.EventID
	From      string
	To        string
	Outcome   string
	SessionID id.SessionID
	RequestID string
	Reason    string
	ClientIP  string
	Device    string
}
