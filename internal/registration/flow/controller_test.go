package flow

//go:generate mockgen -source=controller.go -destination=mocks/mocks.go -package=mocks Resolver,Registrar,SessionBinder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	identity "github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/flow/mocks"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

type ControllerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	resolver    *mocks.MockResolver
	registrar   *mocks.MockRegistrar
	binder      *mocks.MockSessionBinder
	scope       Scope
	controller  *Controller
	transitions []Transition
	mu          sync.Mutex
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.resolver = mocks.NewMockResolver(s.ctrl)
	s.registrar = mocks.NewMockRegistrar(s.ctrl)
	s.binder = mocks.NewMockSessionBinder(s.ctrl)
	s.scope = Scope{OrgID: "org-1", EventID: "event-1", Device: id.NewDeviceID()}
	s.transitions = nil
	s.controller = s.newController(s.scope)
}

func (s *ControllerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ControllerSuite) newController(scope Scope) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(scope, s.resolver, s.registrar, s.binder,
		WithLogger(logger),
		WithObserver(func(_ context.Context, t Transition) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.transitions = append(s.transitions, t)
		}),
	)
}

func testSchema() *models.FormSchema {
	return &models.FormSchema{
		Enabled:        true,
		Title:          "Summit 2026",
		SuccessMessage: "See you there",
		Fields: []models.FieldDefinition{
			{ID: "email", Type: models.FieldEmail, Label: "Email", Required: true, Order: 1, IsIdentifier: true},
			{ID: "doc", Type: models.FieldText, Label: "Document", Required: true, Order: 2, IsIdentifier: true},
			{ID: "name", Type: models.FieldText, Label: "Name", Required: true, Order: 3},
			{ID: "country", Type: models.FieldSelect, Label: "Country", Order: 4, Options: []models.Option{
				{Value: "CO", Label: "Colombia"},
				{Value: "US", Label: "United States"},
			}},
			{ID: "dial_code", Type: models.FieldTel, Label: "Dial code", Order: 5, Hidden: true, AutoCalculated: true, DependsOn: "country"},
		},
	}
}

func testAttendee() *identity.Attendee {
	return &identity.Attendee{
		ID:    "att-1",
		OrgID: "org-1",
		Email: "ana@example.com",
		Values: models.ValueSet{
			"email":   "ana@example.com",
			"doc":     "123",
			"name":    "Ana",
			"country": "CO",
		},
	}
}

// toQuickLogin loads the schema, picks "already registered" and fills the
// identifiers.
func (s *ControllerSuite) toQuickLogin(c *Controller) {
	ctx := context.Background()
	s.Require().NoError(c.Load(ctx, testSchema()))
	s.Require().NoError(c.ChooseExisting(ctx))
	_, _, err := c.Edit(models.ValueSet{"email": "ana@example.com", "doc": "123"})
	s.Require().NoError(err)
}

func (s *ControllerSuite) TestLoad() {
	ctx := context.Background()

	s.Run("schema with identifiers offers access options", func() {
		c := s.newController(s.scope)
		s.Require().NoError(c.Load(ctx, testSchema()))
		s.Equal(StateAccessOptions, c.State())
	})

	s.Run("schema without identifiers goes straight to registration", func() {
		schema := testSchema()
		for i := range schema.Fields {
			schema.Fields[i].IsIdentifier = false
		}
		c := s.newController(s.scope)
		s.Require().NoError(c.Load(ctx, schema))
		s.Equal(StateFullRegistration, c.State())
	})

	s.Run("disabled form", func() {
		schema := testSchema()
		schema.Enabled = false
		c := s.newController(s.scope)
		err := c.Load(ctx, schema)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(StateLoading, c.State())
	})

	s.Run("seeded values are recomputed", func() {
		schema := testSchema()
		schema.Fields[3].DefaultValue = "US"
		c := s.newController(s.scope)
		s.Require().NoError(c.Load(ctx, schema))
		s.Equal("+1", c.Snapshot().Values["dial_code"])
	})
}

func (s *ControllerSuite) TestEditDropsAutoCalculatedAndUnknownFields() {
	ctx := context.Background()
	s.Require().NoError(s.controller.Load(ctx, testSchema()))
	s.Require().NoError(s.controller.ChooseNew(ctx))

	applied, dropped, err := s.controller.Edit(models.ValueSet{
		"country":   "CO",
		"dial_code": "+99",
		"nickname":  "ana",
	})
	s.Require().NoError(err)
	s.Equal(models.ValueSet{"country": "CO"}, applied)
	s.ElementsMatch([]string{"dial_code", "nickname"}, dropped)

	update := s.controller.Recompute()
	s.Equal(models.ValueSet{"dial_code": "+57"}, update)
	s.Empty(s.controller.Recompute())
}

func (s *ControllerSuite) TestEditOutsideFormStates() {
	_, _, err := s.controller.Edit(models.ValueSet{"name": "Ana"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ControllerSuite) TestVerifyValidatesIdentifiersFirst() {
	ctx := context.Background()
	s.Require().NoError(s.controller.Load(ctx, testSchema()))
	s.Require().NoError(s.controller.ChooseExisting(ctx))
	_, _, err := s.controller.Edit(models.ValueSet{"email": "not-an-email"})
	s.Require().NoError(err)

	_, err = s.controller.Verify(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	view := s.controller.Snapshot()
	s.Equal(StateQuickLogin, view.State)
	s.Contains(view.Errors, "email")
	s.Contains(view.Errors, "doc")
	s.NotContains(view.Errors, "name")
}

func (s *ControllerSuite) TestVerifyMismatchHighlightsFields() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().
		Resolve(gomock.Any(), identity.MatchRequest{
			OrgID:       "org-1",
			EventID:     "event-1",
			Identifiers: models.ValueSet{"email": "ana@example.com", "doc": "123"},
		}).
		Return(identity.InvalidFields("email"), nil)

	result, err := s.controller.Verify(ctx)
	s.Require().NoError(err)
	s.Equal(identity.MatchInvalidFields, result.Kind)

	view := s.controller.Snapshot()
	s.Equal(StateQuickLogin, view.State)
	s.Equal([]string{"email"}, view.Mismatched)
	s.Require().Len(view.Fields, 2)
	s.Equal("email", view.Fields[0].ID)
	s.True(view.Fields[0].Mismatched)
	s.Equal("doc", view.Fields[1].ID)
	s.False(view.Fields[1].Mismatched)
	s.Equal(NoticeMismatch, view.Notice)

	_, _, err = s.controller.Edit(models.ValueSet{"email": "ana.maria@example.com"})
	s.Require().NoError(err)
	s.Empty(s.controller.Snapshot().Mismatched)
}

func (s *ControllerSuite) TestVerifyNotFoundRoutesToRegistration() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(identity.NotFound(), nil)

	_, err := s.controller.Verify(ctx)
	s.Require().NoError(err)

	view := s.controller.Snapshot()
	s.Equal(StateFullRegistration, view.State)
	s.Equal(NoticeNotFound, view.Notice)
	s.Equal("ana@example.com", view.Values["email"])
}

func (s *ControllerSuite) TestVerifyEventRegisteredBindsOnceUnderDoubleSubmit() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)

	started := make(chan struct{})
	release := make(chan struct{})
	eventUser := &identity.EventUser{ID: "eu-1", EventID: "event-1", AttendeeID: "att-1"}
	s.resolver.EXPECT().
		Resolve(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, identity.MatchRequest) (identity.MatchResult, error) {
			close(started)
			<-release
			return identity.EventRegistered(testAttendee(), eventUser), nil
		}).
		Times(1)
	s.binder.EXPECT().
		Bind(gomock.Any(), s.scope.Device, "ana@example.com").
		Return(id.SessionID("sess-1"), nil).
		Times(1)
	s.registrar.EXPECT().
		AssociateSession(gomock.Any(), identity.AssociateRequest{
			OrgID:     "org-1",
			EventID:   "event-1",
			Email:     "ana@example.com",
			SessionID: "sess-1",
		}).
		Return(nil).
		Times(1)

	done := make(chan error, 1)
	go func() {
		_, err := s.controller.Verify(ctx)
		done <- err
	}()
	<-started

	_, err := s.controller.Verify(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.True(s.controller.Snapshot().Busy)

	close(release)
	s.Require().NoError(<-done)

	view := s.controller.Snapshot()
	s.Equal(StateCompleted, view.State)
	s.Equal(id.SessionID("sess-1"), view.SessionID)
	s.Equal("See you there", view.SuccessMessage)
	s.False(view.Busy)
}

func (s *ControllerSuite) TestVerifyEventRegisteredSkipsAssociationWhenLinked() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	eventUser := &identity.EventUser{ID: "eu-1", EventID: "event-1", AttendeeID: "att-1", SessionID: "sess-1"}
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).
		Return(identity.EventRegistered(testAttendee(), eventUser), nil)
	s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").Return(id.SessionID("sess-1"), nil)

	_, err := s.controller.Verify(ctx)
	s.Require().NoError(err)
	s.Equal(StateCompleted, s.controller.State())
}

func (s *ControllerSuite) TestOrgOnlyUpdateInfoThenSubmit() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(identity.OrgOnly(testAttendee()), nil)

	_, err := s.controller.Verify(ctx)
	s.Require().NoError(err)
	s.Equal(StateSummary, s.controller.State())

	s.Require().NoError(s.controller.UpdateInfo(ctx))
	view := s.controller.Snapshot()
	s.Equal(StateUpdateRegistration, view.State)
	s.Equal("Ana", view.ExistingData["name"])
	s.Equal("Ana", view.Values["name"])
	s.Equal("+57", view.Values["dial_code"])

	_, _, err = s.controller.Edit(models.ValueSet{"name": "Ana María"})
	s.Require().NoError(err)

	updated := testAttendee()
	updated.Values["name"] = "Ana María"
	eventUser := &identity.EventUser{ID: "eu-9", EventID: "event-1", AttendeeID: "att-1"}
	gomock.InOrder(
		s.registrar.EXPECT().
			UpdateRegistration(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req identity.UpdateRequest) (*identity.Attendee, error) {
				s.Equal(id.AttendeeID("att-1"), req.AttendeeID)
				s.Equal("Ana María", req.Values["name"])
				return updated, nil
			}),
		s.registrar.EXPECT().
			FindRegistration(gomock.Any(), identity.MatchRequest{
				OrgID:       "org-1",
				EventID:     "event-1",
				Identifiers: models.ValueSet{"email": "ana@example.com", "doc": "123"},
			}).
			Return(identity.Registration{Attendee: updated}, true, nil),
		s.registrar.EXPECT().
			Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req identity.RegisterRequest) (identity.Registration, error) {
				s.Equal(id.EventID("event-1"), req.EventID)
				s.Empty(req.SessionID)
				return identity.Registration{Attendee: updated, EventUser: eventUser}, nil
			}),
		s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").Return(id.SessionID("sess-1"), nil),
		s.registrar.EXPECT().AssociateSession(gomock.Any(), gomock.Any()).Return(nil),
	)

	s.Require().NoError(s.controller.Submit(ctx))
	view = s.controller.Snapshot()
	s.Equal(StateCompleted, view.State)
	s.Equal("Ana María", view.Attendee.Values["name"])
	s.Equal(id.EventUserID("eu-9"), view.EventUser.ID)
}

func (s *ControllerSuite) TestContinueJoinsOnceAcrossRetries() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(identity.OrgOnly(testAttendee()), nil)
	_, err := s.controller.Verify(ctx)
	s.Require().NoError(err)

	eventUser := &identity.EventUser{ID: "eu-1", EventID: "event-1", AttendeeID: "att-1"}
	s.registrar.EXPECT().FindRegistration(gomock.Any(), gomock.Any()).
		Return(identity.Registration{}, false, nil).
		Times(1)
	s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(identity.Registration{Attendee: testAttendee(), EventUser: eventUser}, nil).
		Times(1)
	gomock.InOrder(
		s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").
			Return(id.SessionID(""), errors.New("connection reset")),
		s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").
			Return(id.SessionID("sess-1"), nil),
	)
	s.registrar.EXPECT().AssociateSession(gomock.Any(), gomock.Any()).Return(nil)

	err = s.controller.Continue(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(StateSummary, s.controller.State())

	s.Require().NoError(s.controller.Continue(ctx))
	s.Equal(StateCompleted, s.controller.State())
}

func (s *ControllerSuite) TestContinueReusesRegistrationMadeElsewhere() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(identity.OrgOnly(testAttendee()), nil)
	_, err := s.controller.Verify(ctx)
	s.Require().NoError(err)

	joined := &identity.EventUser{ID: "eu-7", EventID: "event-1", AttendeeID: "att-1", SessionID: "sess-1"}
	s.registrar.EXPECT().
		FindRegistration(gomock.Any(), identity.MatchRequest{
			OrgID:       "org-1",
			EventID:     "event-1",
			Identifiers: models.ValueSet{"email": "ana@example.com", "doc": "123"},
		}).
		Return(identity.Registration{Attendee: testAttendee(), EventUser: joined}, true, nil)
	s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").Return(id.SessionID("sess-1"), nil)

	s.Require().NoError(s.controller.Continue(ctx))
	view := s.controller.Snapshot()
	s.Equal(StateCompleted, view.State)
	s.Equal(id.EventUserID("eu-7"), view.EventUser.ID)
}

func (s *ControllerSuite) TestContinueLookupFailureKeepsSummary() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(identity.OrgOnly(testAttendee()), nil)
	_, err := s.controller.Verify(ctx)
	s.Require().NoError(err)

	s.registrar.EXPECT().FindRegistration(gomock.Any(), gomock.Any()).
		Return(identity.Registration{}, false, errors.New("connection reset"))

	err = s.controller.Continue(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(StateSummary, s.controller.State())
	s.False(s.controller.Snapshot().Busy)
}

func (s *ControllerSuite) TestOrgScopedContinueOnlyBinds() {
	ctx := context.Background()
	scope := Scope{OrgID: "org-1", Device: s.scope.Device}
	c := s.newController(scope)
	s.toQuickLogin(c)

	s.resolver.EXPECT().
		Resolve(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req identity.MatchRequest) (identity.MatchResult, error) {
			s.True(req.OrgScoped())
			return identity.OrgOnly(testAttendee()), nil
		})
	s.binder.EXPECT().Bind(gomock.Any(), scope.Device, "ana@example.com").Return(id.SessionID("sess-1"), nil)

	_, err := c.Verify(ctx)
	s.Require().NoError(err)
	s.Equal(StateSummary, c.State())

	s.Require().NoError(c.Continue(ctx))
	s.Equal(StateCompleted, c.State())
	s.Equal(id.SessionID("sess-1"), c.Snapshot().SessionID)
}

func (s *ControllerSuite) TestTransportErrorKeepsStateAndValues() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	gomock.InOrder(
		s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).
			Return(identity.MatchResult{}, errors.New("dial tcp: connection refused")),
		s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).
			Return(identity.NotFound(), nil),
	)

	_, err := s.controller.Verify(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	view := s.controller.Snapshot()
	s.Equal(StateQuickLogin, view.State)
	s.False(view.Busy)
	s.Equal("123", view.Values["doc"])

	_, err = s.controller.Verify(ctx)
	s.Require().NoError(err)
	s.Equal(StateFullRegistration, s.controller.State())
}

func (s *ControllerSuite) TestIncompleteResultIsTransportError() {
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).
		Return(identity.MatchResult{Kind: identity.MatchOrgOnly}, nil)

	_, err := s.controller.Verify(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(StateQuickLogin, s.controller.State())
}

func (s *ControllerSuite) TestSupersededVerifyIsDiscarded() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)

	started := make(chan struct{})
	release := make(chan struct{})
	s.resolver.EXPECT().
		Resolve(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, identity.MatchRequest) (identity.MatchResult, error) {
			close(started)
			<-release
			return identity.OrgOnly(testAttendee()), nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := s.controller.Verify(ctx)
		done <- err
	}()
	<-started

	s.Require().NoError(s.controller.Load(ctx, testSchema()))
	close(release)

	err := <-done
	s.True(dErrors.HasCode(err, dErrors.CodeStale))
	view := s.controller.Snapshot()
	s.Equal(StateAccessOptions, view.State)
	s.Nil(view.Attendee)
}

func (s *ControllerSuite) TestBackSupersedesVerify() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)

	started := make(chan struct{})
	release := make(chan struct{})
	s.resolver.EXPECT().
		Resolve(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, identity.MatchRequest) (identity.MatchResult, error) {
			close(started)
			<-release
			return identity.NotFound(), nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := s.controller.Verify(ctx)
		done <- err
	}()
	<-started

	s.Require().NoError(s.controller.Back(ctx))
	s.False(s.controller.Snapshot().Busy)
	close(release)

	s.True(dErrors.HasCode(<-done, dErrors.CodeStale))
	s.Equal(StateAccessOptions, s.controller.State())
}

func (s *ControllerSuite) TestEditRefusedWhileSubmitInFlight() {
	ctx := context.Background()
	s.Require().NoError(s.controller.Load(ctx, testSchema()))
	s.Require().NoError(s.controller.ChooseNew(ctx))
	_, _, err := s.controller.Edit(models.ValueSet{
		"email": "ana@example.com", "doc": "123", "name": "Ana", "country": "US",
	})
	s.Require().NoError(err)

	started := make(chan struct{})
	release := make(chan struct{})
	s.binder.EXPECT().
		Bind(gomock.Any(), s.scope.Device, "ana@example.com").
		DoAndReturn(func(context.Context, id.DeviceID, string) (id.SessionID, error) {
			close(started)
			<-release
			return id.SessionID("sess-1"), nil
		})
	s.registrar.EXPECT().
		Register(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req identity.RegisterRequest) (identity.Registration, error) {
			return identity.Registration{
				Attendee:  &identity.Attendee{ID: "att-2", Email: req.Email, Values: req.Values},
				EventUser: &identity.EventUser{ID: "eu-2", EventID: req.EventID, AttendeeID: "att-2", SessionID: req.SessionID},
			}, nil
		})

	done := make(chan error, 1)
	go func() { done <- s.controller.Submit(ctx) }()
	<-started

	applied, _, err := s.controller.Edit(models.ValueSet{"name": "Beatriz"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Nil(applied)

	close(release)
	s.Require().NoError(<-done)
	view := s.controller.Snapshot()
	s.Equal(StateCompleted, view.State)
	s.Equal("Ana", view.Values["name"])
}

func (s *ControllerSuite) TestSubmitFullRegistration() {
	ctx := context.Background()
	s.Require().NoError(s.controller.Load(ctx, testSchema()))
	s.Require().NoError(s.controller.ChooseNew(ctx))

	s.Run("invalid form calls nothing", func() {
		_, _, err := s.controller.Edit(models.ValueSet{"email": "ana@example.com"})
		s.Require().NoError(err)

		err = s.controller.Submit(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		view := s.controller.Snapshot()
		s.Equal(StateFullRegistration, view.State)
		s.Contains(view.Errors, "name")
		s.Contains(view.Errors, "doc")
	})

	s.Run("failed register leaves values untouched", func() {
		_, _, err := s.controller.Edit(models.ValueSet{"doc": "123", "name": "Ana", "country": "US"})
		s.Require().NoError(err)
		before := s.controller.Snapshot().Values

		s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").Return(id.SessionID("sess-1"), nil)
		s.registrar.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(identity.Registration{}, dErrors.New(dErrors.CodeUnavailable, "backend unavailable"))

		err = s.controller.Submit(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		view := s.controller.Snapshot()
		s.Equal(StateFullRegistration, view.State)
		s.Equal(before, view.Values)
		s.Empty(view.Errors)
	})

	s.Run("success registers with the bound session", func() {
		s.binder.EXPECT().Bind(gomock.Any(), s.scope.Device, "ana@example.com").Return(id.SessionID("sess-1"), nil)
		s.registrar.EXPECT().
			Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req identity.RegisterRequest) (identity.Registration, error) {
				s.Equal(id.SessionID("sess-1"), req.SessionID)
				s.Equal("+1", req.Values["dial_code"])
				s.Equal("ana@example.com", req.Email)
				return identity.Registration{
					Attendee:  &identity.Attendee{ID: "att-2", Email: req.Email, Values: req.Values},
					EventUser: &identity.EventUser{ID: "eu-2", EventID: req.EventID, AttendeeID: "att-2", SessionID: req.SessionID},
				}, nil
			})

		s.Require().NoError(s.controller.Submit(ctx))
		s.Equal(StateCompleted, s.controller.State())
	})

	s.Run("completed is terminal", func() {
		err := s.controller.Submit(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ControllerSuite) TestResetReturnsToLoading() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.controller.Reset(ctx)

	view := s.controller.Snapshot()
	s.Equal(StateLoading, view.State)
	s.Empty(view.Values)
	s.Empty(view.Fields)

	s.Require().NoError(s.controller.Load(ctx, testSchema()))
	s.Equal(StateAccessOptions, s.controller.State())
}

func (s *ControllerSuite) TestObserverSeesTransitions() {
	ctx := context.Background()
	s.toQuickLogin(s.controller)
	s.Require().NoError(s.controller.Back(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	var events []Event
	for _, t := range s.transitions {
		events = append(events, t.Event)
	}
	s.Equal([]Event{EventSchemaLoaded, EventChooseExisting, EventBack}, events)
	last := s.transitions[len(s.transitions)-1]
	s.Equal(StateQuickLogin, last.From)
	s.Equal(StateAccessOptions, last.To)
}

func (s *ControllerSuite) TestVerifyTimeout() {
	s.toQuickLogin(s.controller)
	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ identity.MatchRequest) (identity.MatchResult, error) {
			<-ctx.Done()
			return identity.MatchResult{}, ctx.Err()
		})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.controller.Verify(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(StateQuickLogin, s.controller.State())
}
