package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/genialityco/gen-live-web-sub000/internal/audit"
	"github.com/genialityco/gen-live-web-sub000/internal/form/dependency"
	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/local"
	identity "github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	identitystore "github.com/genialityco/gen-live-web-sub000/internal/identity/store"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/flow"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/session"
	"github.com/genialityco/gen-live-web-sub000/internal/session/provider"
	sessionstore "github.com/genialityco/gen-live-web-sub000/internal/session/store"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

type stubForms map[id.OrgSlug]*models.FormSchema

func (f stubForms) Form(_ context.Context, slug id.OrgSlug) (*models.FormSchema, error) {
	schema, ok := f[slug]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no registration form for %s", slug)
	}
	return schema, nil
}

// manualScheduler arms timers that only run when the test flushes.
type manualScheduler struct {
	mu    sync.Mutex
	armed int
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (m *manualScheduler) AfterFunc(time.Duration, func()) dependency.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed++
	return manualTimer{}
}

type ServiceSuite struct {
	suite.Suite
	attendees *identitystore.InMemoryAttendeeStore
	audit     *audit.Publisher
	auditDB   *audit.InMemoryStore
	binder    *session.Binder
	metrics   *metrics.Metrics
	scheduler *manualScheduler
	now       time.Time
	service   *Service
	device    id.DeviceID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.attendees = identitystore.NewInMemoryAttendeeStore()
	backend := local.New(s.attendees, identitystore.NewInMemoryEventUserStore(), local.WithLogger(logger))
	s.binder = session.NewBinder(sessionstore.NewInMemory(),
		provider.NewJWTProvider("test-signing-key", "gen-live", time.Hour),
		session.WithLogger(logger))

	s.auditDB = audit.NewInMemoryStore()
	s.audit = audit.NewPublisher(s.auditDB)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.scheduler = &manualScheduler{}
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.device = id.NewDeviceID()

	forms := stubForms{"summit": serviceSchema()}
	s.service = New(forms, backend, s.binder,
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.audit),
		WithScheduler(s.scheduler),
		WithClock(func() time.Time { return s.now }),
		WithVisitTTL(10*time.Minute),
	)
}

func serviceSchema() *models.FormSchema {
	return &models.FormSchema{
		OrgID:   "org-1",
		OrgSlug: "summit",
		Enabled: true,
		Fields: []models.FieldDefinition{
			{ID: "email", Type: models.FieldEmail, Label: "Email", Required: true, Order: 1, IsIdentifier: true},
			{ID: "name", Type: models.FieldText, Label: "Name", Required: true, Order: 2},
			{ID: "country", Type: models.FieldSelect, Label: "Country", Order: 3, Options: []models.Option{
				{Value: "CO", Label: "Colombia"},
				{Value: "US", Label: "United States"},
			}},
			{ID: "dial_code", Type: models.FieldTel, Label: "Dial code", Order: 4, Hidden: true, AutoCalculated: true, DependsOn: "country"},
		},
	}
}

func (s *ServiceSuite) start() *VisitView {
	view, err := s.service.StartVisit(context.Background(), StartRequest{
		OrgSlug: "summit",
		EventID: "event-1",
		Device:  s.device,
	})
	s.Require().NoError(err)
	return view
}

func (s *ServiceSuite) auditActions(visitID id.VisitID) []audit.Action {
	s.Require().NoError(s.audit.Flush(context.Background()))
	events, err := s.auditDB.ListByVisit(context.Background(), visitID)
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *ServiceSuite) TestStartVisit() {
	view := s.start()
	s.Equal(flow.StateAccessOptions, view.State)
	s.Equal(id.OrgID("org-1"), view.OrgID)
	s.Empty(view.DeviceSession)
	s.Equal(1, s.service.ActiveVisits())

	s.Run("unknown form", func() {
		_, err := s.service.StartVisit(context.Background(), StartRequest{OrgSlug: "nope", Device: s.device})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing device", func() {
		_, err := s.service.StartVisit(context.Background(), StartRequest{OrgSlug: "summit"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestUpdateValuesIsDebounced() {
	ctx := context.Background()
	view := s.start()
	_, err := s.service.ChooseAccess(ctx, view.ID, false)
	s.Require().NoError(err)

	updated, err := s.service.UpdateValues(ctx, view.ID, models.ValueSet{"country": "CO", "dial_code": "+99"})
	s.Require().NoError(err)
	s.True(updated.Recomputing)
	s.Equal("", updated.Values["dial_code"])
	s.Equal(1, s.scheduler.armed)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.DroppedInputs))

	got, err := s.service.Get(ctx, view.ID)
	s.Require().NoError(err)
	s.False(got.Recomputing)
	s.Equal("+57", got.Values["dial_code"])
	s.Contains(s.auditActions(view.ID), audit.ActionInputDropped)
}

func (s *ServiceSuite) TestNewVisitorRegisters() {
	ctx := context.Background()
	view := s.start()
	_, err := s.service.ChooseAccess(ctx, view.ID, false)
	s.Require().NoError(err)

	_, err = s.service.Submit(ctx, view.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.ValidationFailures.WithLabelValues("submit")))

	_, err = s.service.UpdateValues(ctx, view.ID, models.ValueSet{"email": "Ana@Example.com", "name": "Ana", "country": "US"})
	s.Require().NoError(err)
	done, err := s.service.Submit(ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(flow.StateCompleted, done.State)
	s.NotEmpty(done.SessionID)
	s.Equal("+1", done.Attendee.Values["dial_code"])

	actions := s.auditActions(view.ID)
	s.Contains(actions, audit.ActionRegistrationSaved)
	s.Contains(actions, audit.ActionSessionBound)
}

func (s *ServiceSuite) TestReturningVisitorReusesSession() {
	ctx := context.Background()

	first := s.start()
	_, err := s.service.ChooseAccess(ctx, first.ID, false)
	s.Require().NoError(err)
	_, err = s.service.UpdateValues(ctx, first.ID, models.ValueSet{"email": "ana@example.com", "name": "Ana"})
	s.Require().NoError(err)
	registered, err := s.service.Submit(ctx, first.ID)
	s.Require().NoError(err)

	second := s.start()
	s.Equal(registered.SessionID, second.DeviceSession)
	_, err = s.service.ChooseAccess(ctx, second.ID, true)
	s.Require().NoError(err)
	_, err = s.service.UpdateValues(ctx, second.ID, models.ValueSet{"email": "ana@example.com"})
	s.Require().NoError(err)

	verified, err := s.service.Verify(ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(flow.StateCompleted, verified.State)
	s.Equal(registered.SessionID, verified.SessionID)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.VerifyOutcomes.WithLabelValues(identity.MatchEventRegistered.String())))
}

func (s *ServiceSuite) TestOrgAttendeeJoinsEvent() {
	ctx := context.Background()
	s.Require().NoError(s.attendees.Save(ctx, &identity.Attendee{
		ID:     "att-1",
		OrgID:  "org-1",
		Email:  "bob@example.com",
		Values: models.ValueSet{"email": "bob@example.com", "name": "Bob"},
	}))

	view := s.start()
	_, err := s.service.ChooseAccess(ctx, view.ID, true)
	s.Require().NoError(err)
	_, err = s.service.UpdateValues(ctx, view.ID, models.ValueSet{"email": "bob@example.com"})
	s.Require().NoError(err)

	summary, err := s.service.Verify(ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(flow.StateSummary, summary.State)
	s.Equal("Bob", summary.ExistingData["name"])

	done, err := s.service.Continue(ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(flow.StateCompleted, done.State)
	s.Require().NotNil(done.EventUser)
	s.Equal(done.SessionID, done.EventUser.SessionID)
}

func (s *ServiceSuite) TestSignOutForgetsDeviceSession() {
	ctx := context.Background()
	first := s.start()
	_, err := s.service.ChooseAccess(ctx, first.ID, false)
	s.Require().NoError(err)
	_, err = s.service.UpdateValues(ctx, first.ID, models.ValueSet{"email": "ana@example.com", "name": "Ana"})
	s.Require().NoError(err)
	_, err = s.service.Submit(ctx, first.ID)
	s.Require().NoError(err)

	open := s.start()
	s.Require().NotEmpty(open.DeviceSession)

	s.Require().NoError(s.service.SignOut(ctx, s.device))

	got, err := s.service.Get(ctx, open.ID)
	s.Require().NoError(err)
	s.Empty(got.DeviceSession)
	_, found, err := s.binder.Current(ctx, s.device)
	s.Require().NoError(err)
	s.False(found)
	s.Contains(s.auditActions(open.ID), audit.ActionSessionSignedOut)

	s.Run("other devices keep their visits", func() {
		other, err := s.service.StartVisit(ctx, StartRequest{OrgSlug: "summit", Device: id.NewDeviceID()})
		s.Require().NoError(err)
		s.Require().NoError(s.service.SignOut(ctx, s.device))
		s.NotContains(s.auditActions(other.ID), audit.ActionSessionSignedOut)
	})

	s.Run("missing device", func() {
		err := s.service.SignOut(ctx, id.DeviceID{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestHistory() {
	ctx := context.Background()
	view := s.start()
	_, err := s.service.ChooseAccess(ctx, view.ID, true)
	s.Require().NoError(err)

	events, err := s.service.History(ctx, view.ID)
	s.Require().NoError(err)
	var actions []audit.Action
	for _, e := range events {
		s.Equal(view.ID, e.VisitID)
		actions = append(actions, e.Action)
	}
	s.Contains(actions, audit.ActionVisitStarted)
	s.Contains(actions, audit.ActionFlowTransition)
	s.Equal(s.auditActions(view.ID), actions)

	s.Run("unknown visit", func() {
		_, err := s.service.History(ctx, id.NewVisitID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestResetReloadsForm() {
	ctx := context.Background()
	view := s.start()
	_, err := s.service.ChooseAccess(ctx, view.ID, true)
	s.Require().NoError(err)

	reset, err := s.service.Reset(ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(flow.StateAccessOptions, reset.State)
	s.Greater(reset.Generation, view.Generation)
}

func (s *ServiceSuite) TestExpireIdle() {
	ctx := context.Background()
	idle := s.start()
	s.now = s.now.Add(8 * time.Minute)
	fresh := s.start()
	s.now = s.now.Add(3 * time.Minute)

	s.Equal(1, s.service.ExpireIdle(ctx))
	_, err := s.service.Get(ctx, idle.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.Get(ctx, fresh.ID)
	s.NoError(err)
	s.Contains(s.auditActions(idle.ID), audit.ActionVisitExpired)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.ActiveVisits))
}

func (s *ServiceSuite) TestUnknownVisit() {
	_, err := s.service.Verify(context.Background(), id.NewVisitID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAuditRecordsClientMetadata() {
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.7", "Mozilla/5.0")
	ctx = requestcontext.WithDeviceName(ctx, "Firefox on Linux")
	ctx = requestcontext.WithRequestID(ctx, "req-9")

	view, err := s.service.StartVisit(ctx, StartRequest{OrgSlug: "summit", Device: s.device})
	s.Require().NoError(err)
	s.Require().NoError(s.audit.Flush(ctx))

	events, err := s.auditDB.ListByVisit(ctx, view.ID)
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(audit.ActionVisitStarted, events[0].Action)
	s.Equal("203.0.113.7", events[0].ClientIP)
	s.Equal("Firefox on Linux", events[0].Device)
	s.Equal("req-9", events[0].RequestID)
}
