// Package domain holds typed identifiers shared across modules.
//
// Visit and device identifiers are minted here and are UUIDs. Organization,
// event, attendee, event-user and session identifiers are issued by the
// registration backend or the identity provider and are opaque strings; they
// are still typed so an event id can never be passed where an attendee id is
// expected.
package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

type (
	VisitID  uuid.UUID
	DeviceID uuid.UUID
)

type (
	OrgID       string
	EventID     string
	AttendeeID  string
	EventUserID string
	SessionID   string
	OrgSlug     string
)

const maxOpaqueIDLength = 128

var (
	opaqueIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

func (id VisitID) String() string  { return uuid.UUID(id).String() }
func (id DeviceID) String() string { return uuid.UUID(id).String() }
func (id VisitID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DeviceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id OrgID) String() string       { return string(id) }
func (id EventID) String() string     { return string(id) }
func (id AttendeeID) String() string  { return string(id) }
func (id EventUserID) String() string { return string(id) }
func (id SessionID) String() string   { return string(id) }
func (s OrgSlug) String() string      { return string(s) }

// NewVisitID mints a visit identifier.
func NewVisitID() VisitID { return VisitID(uuid.New()) }

// NewDeviceID mints a device identifier for a browser without a device cookie.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

func ParseVisitID(s string) (VisitID, error) {
	u, err := parseUUID(s, "visit")
	return VisitID(u), err
}

func ParseDeviceID(s string) (DeviceID, error) {
	u, err := parseUUID(s, "device")
	return DeviceID(u), err
}

func ParseOrgID(s string) (OrgID, error) {
	v, err := parseOpaque(s, "organization")
	return OrgID(v), err
}

func ParseEventID(s string) (EventID, error) {
	v, err := parseOpaque(s, "event")
	return EventID(v), err
}

func ParseAttendeeID(s string) (AttendeeID, error) {
	v, err := parseOpaque(s, "attendee")
	return AttendeeID(v), err
}

func ParseSessionID(s string) (SessionID, error) {
	v, err := parseOpaque(s, "session")
	return SessionID(v), err
}

// ParseOrgSlug accepts lowercase kebab-case slugs.
func ParseOrgSlug(s string) (OrgSlug, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "organization slug is required")
	}
	if len(s) > maxOpaqueIDLength || !slugPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid organization slug")
	}
	return OrgSlug(s), nil
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id cannot be nil", kind)
	}
	return u, nil
}

func parseOpaque(s, kind string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	if len(s) > maxOpaqueIDLength || !utf8.ValidString(s) || !opaqueIDPattern.MatchString(s) {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	return s, nil
}
