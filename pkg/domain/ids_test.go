package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

// Visit ids are minted by us and must be valid, non-nil UUIDs.
func TestParseVisitID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseVisitID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseVisitID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		u := uuid.New()
		got, err := ParseVisitID(u.String())
		require.NoError(t, err)
		assert.Equal(t, VisitID(u), got)
		assert.Equal(t, u.String(), got.String())
	})
}

// Backend-issued ids are opaque but still cross a trust boundary.
func TestParseOpaqueIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE attendees;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "65f1c0\x00ab", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Empty string", "", true},
		{"Mongo object id", "65f1c0a9e4b0c1d2e3f4a5b6", false},
		{"UUID", uuid.NewString(), false},
		{"Prefixed id", "evt_2024:main-stage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOrg := ParseOrgID(tt.input)
			_, errEvent := ParseEventID(tt.input)
			_, errAttendee := ParseAttendeeID(tt.input)
			_, errSession := ParseSessionID(tt.input)
			for _, err := range []error{errOrg, errEvent, errAttendee, errSession} {
				if tt.wantErr {
					require.Error(t, err)
					assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				} else {
					require.NoError(t, err)
				}
			}
		})
	}
}

func TestParseOrgSlug(t *testing.T) {
	slug, err := ParseOrgSlug("  geniality-live ")
	require.NoError(t, err)
	assert.Equal(t, OrgSlug("geniality-live"), slug)

	for _, bad := range []string{"", "Upper", "double--dash", "-lead", "has space", "emoji🎉"} {
		_, err := ParseOrgSlug(bad)
		assert.Error(t, err, bad)
	}
}

// Typed ids are distinct types; assigning an EventID to an AttendeeID does
// not compile. This only checks the runtime values stay independent.
func TestTypeDistinction(t *testing.T) {
	event := EventID("shared")
	attendee := AttendeeID("shared")
	assert.Equal(t, event.String(), attendee.String())
	assert.NotEqual(t, any(event), any(attendee))
}
