package local

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/store"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

type BackendSuite struct {
	suite.Suite
	backend    *Backend
	attendees  *store.InMemoryAttendeeStore
	eventUsers *store.InMemoryEventUserStore
	ctx        context.Context
	seq        int
}

func TestBackendSuite(t *testing.T) {
	suite.Run(t, new(BackendSuite))
}

const (
	org   = id.OrgID("org-1")
	event = id.EventID("event-1")
)

func (s *BackendSuite) SetupTest() {
	s.attendees = store.NewInMemoryAttendeeStore()
	s.eventUsers = store.NewInMemoryEventUserStore()
	s.ctx = context.Background()
	s.seq = 0
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.backend = New(s.attendees, s.eventUsers,
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string {
			s.seq++
			return fmt.Sprintf("id-%d", s.seq)
		}),
	)
}

func (s *BackendSuite) register(email string, values form.ValueSet, eventID id.EventID) models.Registration {
	reg, err := s.backend.Register(s.ctx, models.RegisterRequest{
		OrgID: org, EventID: eventID, Email: email, Values: values,
	})
	s.Require().NoError(err)
	return reg
}

func (s *BackendSuite) resolve(eventID id.EventID, identifiers form.ValueSet) models.MatchResult {
	res, err := s.backend.Resolve(s.ctx, models.MatchRequest{OrgID: org, EventID: eventID, Identifiers: identifiers})
	s.Require().NoError(err)
	s.Require().True(res.Valid())
	return res
}

func (s *BackendSuite) TestResolve() {
	s.register("b@x.com", form.ValueSet{"email": "b@x.com", "doc": "123", "name": "Bea"}, "")

	s.Run("no identifiers is not found", func() {
		s.Equal(models.MatchNotFound, s.resolve(event, form.ValueSet{"email": "", "doc": " "}).Kind)
	})

	s.Run("nothing agrees is not found", func() {
		s.Equal(models.MatchNotFound, s.resolve(event, form.ValueSet{"email": "z@x.com", "doc": "999"}).Kind)
	})

	s.Run("partial match names the disagreeing fields", func() {
		res := s.resolve(event, form.ValueSet{"email": "a@x.com", "doc": "123"})
		s.Equal(models.MatchInvalidFields, res.Kind)
		s.Equal([]string{"email"}, res.Mismatched)
		s.True(res.IsMismatched("email"))
		s.False(res.IsMismatched("doc"))
	})

	s.Run("full match without event registration is org only", func() {
		res := s.resolve(event, form.ValueSet{"email": "B@X.com ", "doc": "123"})
		s.Equal(models.MatchOrgOnly, res.Kind)
		s.Equal("Bea", res.Attendee.Values["name"])
	})

	s.Run("org scoped lookups stop at org only", func() {
		s.Equal(models.MatchOrgOnly, s.resolve("", form.ValueSet{"email": "b@x.com"}).Kind)
	})
}

func (s *BackendSuite) TestResolve_EventRegistered() {
	reg := s.register("c@x.com", form.ValueSet{"email": "c@x.com", "doc": "77"}, event)
	s.Require().NotNil(reg.EventUser)

	res := s.resolve(event, form.ValueSet{"email": "c@x.com", "doc": "77"})
	s.Equal(models.MatchEventRegistered, res.Kind)
	s.Equal(reg.EventUser.ID, res.EventUser.ID)

	res = s.resolve("event-2", form.ValueSet{"email": "c@x.com", "doc": "77"})
	s.Equal(models.MatchOrgOnly, res.Kind)
}

func (s *BackendSuite) TestResolve_UnicodeFolding() {
	s.register("d@x.com", form.ValueSet{"email": "d@x.com", "name": "STRASSE"}, "")
	res := s.resolve("", form.ValueSet{"name": "straße"})
	s.Equal(models.MatchOrgOnly, res.Kind)
}

func (s *BackendSuite) TestRegister_MergesIntoExistingAttendee() {
	first := s.register("e@x.com", form.ValueSet{"email": "e@x.com", "city": "MED"}, "")
	second := s.register(" E@x.com", form.ValueSet{"city": "BOG", "phone": "300"}, event)

	s.Equal(first.Attendee.ID, second.Attendee.ID)
	s.Equal(form.ValueSet{"email": "e@x.com", "city": "BOG", "phone": "300"}, second.Attendee.Values)
	s.Require().NotNil(second.EventUser)
	s.Equal(second.Attendee.ID, second.EventUser.AttendeeID)
}

func (s *BackendSuite) TestRegister_WithSession() {
	reg, err := s.backend.Register(s.ctx, models.RegisterRequest{
		OrgID: org, EventID: event, Email: "f@x.com", Values: form.ValueSet{"email": "f@x.com"}, SessionID: "sess-9",
	})
	s.Require().NoError(err)
	s.Equal(id.SessionID("sess-9"), reg.EventUser.SessionID)

	again := s.register("f@x.com", form.ValueSet{}, event)
	s.Equal(reg.EventUser.ID, again.EventUser.ID, "joining twice keeps one registration")
	s.Equal(id.SessionID("sess-9"), again.EventUser.SessionID)
}

func (s *BackendSuite) TestRegister_RequiresEmail() {
	_, err := s.backend.Register(s.ctx, models.RegisterRequest{OrgID: org, Values: form.ValueSet{"doc": "1"}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *BackendSuite) TestUpdateRegistration() {
	reg := s.register("g@x.com", form.ValueSet{"email": "g@x.com", "city": "MED"}, "")

	updated, err := s.backend.UpdateRegistration(s.ctx, models.UpdateRequest{
		AttendeeID: reg.Attendee.ID,
		Values:     form.ValueSet{"city": "CAL"},
	})
	s.Require().NoError(err)
	s.Equal("CAL", updated.Values["city"])
	s.Equal("g@x.com", updated.Email)

	_, err = s.backend.UpdateRegistration(s.ctx, models.UpdateRequest{AttendeeID: "nobody"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *BackendSuite) TestUpdateRegistration_EmailTakenIsConflict() {
	s.register("h@x.com", form.ValueSet{}, "")
	other := s.register("i@x.com", form.ValueSet{}, "")

	_, err := s.backend.UpdateRegistration(s.ctx, models.UpdateRequest{AttendeeID: other.Attendee.ID, Email: "h@x.com"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *BackendSuite) TestAssociateSession() {
	s.register("j@x.com", form.ValueSet{"email": "j@x.com"}, event)

	err := s.backend.AssociateSession(s.ctx, models.AssociateRequest{OrgID: org, EventID: event, Email: "J@x.com", SessionID: "sess-1"})
	s.Require().NoError(err)

	reg, found, err := s.backend.FindRegistration(s.ctx, models.MatchRequest{
		OrgID: org, EventID: event, Identifiers: form.ValueSet{"email": "j@x.com"},
	})
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal(id.SessionID("sess-1"), reg.EventUser.SessionID)

	err = s.backend.AssociateSession(s.ctx, models.AssociateRequest{OrgID: org, EventID: "event-2", Email: "j@x.com", SessionID: "sess-1"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *BackendSuite) TestFindRegistration_NotFound() {
	_, found, err := s.backend.FindRegistration(s.ctx, models.MatchRequest{
		OrgID: org, EventID: event, Identifiers: form.ValueSet{"email": "nobody@x.com"},
	})
	s.NoError(err)
	s.False(found)
}

type recordingTx struct {
	calls     int
	commitErr error
}

func (r *recordingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return r.commitErr
}

func (s *BackendSuite) TestRegister_RunsInOneTransaction() {
	rec := &recordingTx{}
	backend := New(s.attendees, s.eventUsers, WithTransactor(rec))

	_, err := backend.Register(s.ctx, models.RegisterRequest{OrgID: org, EventID: event, Email: "t@x.com"})
	s.Require().NoError(err)
	s.Equal(1, rec.calls)

	s.Run("commit failure fails the registration", func() {
		rec.commitErr = dErrors.New(dErrors.CodeUnavailable, "failed to commit transaction")
		_, err := backend.Register(s.ctx, models.RegisterRequest{OrgID: org, EventID: event, Email: "u@x.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *BackendSuite) TestRegister_DefaultsToRequestTime() {
	requestTime := time.Date(2026, 7, 4, 18, 30, 0, 0, time.UTC)
	backend := New(s.attendees, s.eventUsers)
	ctx := requestcontext.WithTime(s.ctx, requestTime)

	reg, err := backend.Register(ctx, models.RegisterRequest{
		OrgID: org, EventID: event, Email: "late@example.com", Values: form.ValueSet{"name": "Late"},
	})
	s.Require().NoError(err)
	s.Equal(requestTime, reg.Attendee.CreatedAt)
	s.Require().NotNil(reg.EventUser)
	s.Equal(requestTime, reg.EventUser.RegisteredAt)
}
