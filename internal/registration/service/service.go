// Package service hosts registration visits: one flow controller and one
// debounced recompute queue per visitor.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/genialityco/gen-live-web-sub000/internal/audit"
	"github.com/genialityco/gen-live-web-sub000/internal/form/dependency"
	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	identity "github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/flow"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/metrics"
	sessionmodels "github.com/genialityco/gen-live-web-sub000/internal/session/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	strs "github.com/genialityco/gen-live-web-sub000/pkg/platform/strings"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

const DefaultVisitTTL = 30 * time.Minute

// FormSource loads an organization's registration form.
type FormSource interface {
	Form(ctx context.Context, slug id.OrgSlug) (*models.FormSchema, error)
}

// Backend resolves identifiers and writes registrations.
type Backend interface {
	flow.Resolver
	flow.Registrar
}

// SessionBinder binds device sessions and reports the one a device holds.
type SessionBinder interface {
	flow.SessionBinder
	Current(ctx context.Context, device id.DeviceID) (*sessionmodels.Binding, bool, error)
	SignOut(ctx context.Context, device id.DeviceID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
	ListByVisit(ctx context.Context, visitID id.VisitID) ([]audit.Event, error)
}

// StartRequest opens a visit. An empty EventID registers with the
// organization only.
type StartRequest struct {
	OrgSlug id.OrgSlug
	EventID id.EventID
	Device  id.DeviceID
}

// VisitView is what a client sees of a visit.
type VisitView struct {
	ID            id.VisitID   `json:"id"`
	OrgSlug       id.OrgSlug   `json:"orgSlug"`
	OrgID         id.OrgID     `json:"orgId"`
	EventID       id.EventID   `json:"eventId,omitempty"`
	Recomputing   bool         `json:"recomputing"`
	DeviceSession id.SessionID `json:"deviceSession,omitempty"`
	flow.View
}

type visit struct {
	id            id.VisitID
	slug          id.OrgSlug
	scope         flow.Scope
	controller    *flow.Controller
	debouncer     *dependency.Debouncer
	deviceSession id.SessionID

	mu       sync.Mutex
	lastSeen time.Time
}

func (v *visit) session() id.SessionID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deviceSession
}

func (v *visit) forgetSession() {
	v.mu.Lock()
	v.deviceSession = ""
	v.mu.Unlock()
}

func (v *visit) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *visit) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// Service owns every open visit.
type Service struct {
	forms     FormSource
	backend   Backend
	binder    SessionBinder
	audit     AuditPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	window    time.Duration
	ttl       time.Duration
	now       func() time.Time
	scheduler dependency.Scheduler

	mu     sync.RWMutex
	visits map[id.VisitID]*visit
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.audit = p
		}
	}
}

func WithDebounceWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithVisitTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithScheduler replaces the timer source of every visit's debouncer.
func WithScheduler(sch dependency.Scheduler) Option {
	return func(s *Service) {
		s.scheduler = sch
	}
}

func New(forms FormSource, backend Backend, binder SessionBinder, opts ...Option) *Service {
	s := &Service{
		forms:   forms,
		backend: backend,
		binder:  binder,
		audit:   (*audit.Publisher)(nil),
		logger:  slog.Default(),
		window:  dependency.DefaultWindow,
		ttl:     DefaultVisitTTL,
		now:     time.Now,
		visits:  make(map[id.VisitID]*visit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Form returns an organization's registration form.
func (s *Service) Form(ctx context.Context, slug id.OrgSlug) (*models.FormSchema, error) {
	return s.forms.Form(ctx, slug)
}

// StartVisit loads the form and opens a visit for the device. The form and
// the device's existing session are fetched concurrently; a failed session
// lookup only costs the hint.
func (s *Service) StartVisit(ctx context.Context, req StartRequest) (*VisitView, error) {
	if req.Device.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "device is required")
	}

	var (
		schema  *models.FormSchema
		binding *sessionmodels.Binding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schema, err = s.forms.Form(gctx, req.OrgSlug)
		return err
	})
	g.Go(func() error {
		b, ok, err := s.binder.Current(gctx, req.Device)
		if err != nil {
			s.logger.WarnContext(gctx, "failed to look up device session", "error", err)
			return nil
		}
		if ok {
			binding = b
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if schema.OrgID == "" {
		return nil, dErrors.Newf(dErrors.CodeConfiguration, "form %s has no organization id", req.OrgSlug)
	}

	v := &visit{
		id:       id.NewVisitID(),
		slug:     req.OrgSlug,
		scope:    flow.Scope{OrgID: schema.OrgID, EventID: req.EventID, Device: req.Device},
		lastSeen: s.now(),
	}
	if binding != nil {
		v.deviceSession = binding.SessionID
	}
	ctx = requestcontext.WithVisitID(ctx, v.id)
	v.controller = flow.New(v.scope, s.backend, s.backend, s.binder,
		flow.WithLogger(s.logger),
		flow.WithObserver(s.observe(v)),
	)
	debounceOpts := []dependency.DebouncerOption{}
	if s.scheduler != nil {
		debounceOpts = append(debounceOpts, dependency.WithScheduler(s.scheduler))
	}
	v.debouncer = dependency.NewDebouncer(s.window, func() { v.controller.Recompute() }, debounceOpts...)

	if err := v.controller.Load(ctx, schema); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.visits[v.id] = v
	active := len(s.visits)
	s.mu.Unlock()
	s.metrics.SetActiveVisits(active)

	s.audit.Emit(ctx, s.auditEvent(ctx, v, audit.ActionVisitStarted))
	s.logger.InfoContext(ctx, "visit started",
		"visit_id", v.id,
		"org_id", v.scope.OrgID,
		"event_id", v.scope.EventID,
	)
	return s.view(v), nil
}

// Get returns the visit after running any pending recompute.
func (s *Service) Get(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	v, err := s.visit(visitID)
	if err != nil {
		return nil, err
	}
	v.debouncer.Flush()
	return s.view(v), nil
}

// UpdateValues applies user input and schedules a recompute. Input for
// unknown or auto-calculated fields is dropped.
func (s *Service) UpdateValues(ctx context.Context, visitID id.VisitID, update models.ValueSet) (*VisitView, error) {
	v, err := s.visit(visitID)
	if err != nil {
		return nil, err
	}
	ctx = requestcontext.WithVisitID(ctx, v.id)
	applied, dropped, err := v.controller.Edit(update)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		dropped = strs.SortedUnique(dropped)
		s.metrics.AddDroppedInputs(len(dropped))
		event := s.auditEvent(ctx, v, audit.ActionInputDropped)
		event.Reason = strings.Join(dropped, ",")
		s.audit.Emit(ctx, event)
		s.logger.InfoContext(ctx, "dropped input for read-only fields", "visit_id", v.id, "fields", dropped)
	}
	if len(applied) > 0 {
		v.debouncer.Schedule()
	}
	return s.view(v), nil
}

// ChooseAccess picks "already registered" (existing) or "new".
func (s *Service) ChooseAccess(ctx context.Context, visitID id.VisitID, existing bool) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		if existing {
			return v.controller.ChooseExisting(ctx)
		}
		return v.controller.ChooseNew(ctx)
	})
}

func (s *Service) Back(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		v.debouncer.Flush()
		return v.controller.Back(ctx)
	})
}

// Verify checks the identifier values. A mismatch is not an error; the view
// carries the highlighted fields.
func (s *Service) Verify(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		v.debouncer.Flush()
		start := time.Now()
		result, err := v.controller.Verify(ctx)
		s.metrics.ObserveStep("verify", start)
		if err != nil {
			s.recordFailure(ctx, v, "verify", err)
			return err
		}
		s.metrics.IncrementVerifyOutcome(result.Kind.String())
		event := s.auditEvent(ctx, v, audit.ActionIdentifiersVerified)
		event.Outcome = result.Kind.String()
		s.audit.Emit(ctx, event)
		if result.Kind == identity.MatchEventRegistered {
			s.emitSessionBound(ctx, v)
		}
		return nil
	})
}

func (s *Service) UpdateInfo(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		return v.controller.UpdateInfo(ctx)
	})
}

// Continue confirms the summary.
func (s *Service) Continue(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		start := time.Now()
		err := v.controller.Continue(ctx)
		s.metrics.ObserveStep("continue", start)
		if err != nil {
			s.recordFailure(ctx, v, "continue", err)
			return err
		}
		s.emitRegistrationSaved(ctx, v, "confirmed")
		s.emitSessionBound(ctx, v)
		return nil
	})
}

// Submit sends the registration form.
func (s *Service) Submit(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		v.debouncer.Flush()
		mode := v.controller.State()
		start := time.Now()
		err := v.controller.Submit(ctx)
		s.metrics.ObserveStep("submit", start)
		if err != nil {
			s.recordFailure(ctx, v, "submit", err)
			return err
		}
		outcome := "created"
		if mode == flow.StateUpdateRegistration {
			outcome = "updated"
		}
		s.emitRegistrationSaved(ctx, v, outcome)
		s.emitSessionBound(ctx, v)
		return nil
	})
}

// Reset restarts the visit from a freshly loaded form.
func (s *Service) Reset(ctx context.Context, visitID id.VisitID) (*VisitView, error) {
	return s.step(ctx, visitID, func(ctx context.Context, v *visit) error {
		v.debouncer.Cancel()
		v.controller.Reset(ctx)
		schema, err := s.forms.Form(ctx, v.slug)
		if err != nil {
			return err
		}
		return v.controller.Load(ctx, schema)
	})
}

// History returns what has happened in a visit so far, oldest first.
func (s *Service) History(ctx context.Context, visitID id.VisitID) ([]audit.Event, error) {
	if _, err := s.visit(visitID); err != nil {
		return nil, err
	}
	events, err := s.audit.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read visit history")
	}
	return events, nil
}

// SignOut drops the device's session binding so the next registration
// starts a new session. Open visits of the device stop offering it.
func (s *Service) SignOut(ctx context.Context, device id.DeviceID) error {
	if device.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "device is required")
	}
	if err := s.binder.SignOut(ctx, device); err != nil {
		return err
	}

	s.mu.RLock()
	var affected []*visit
	for _, v := range s.visits {
		if v.scope.Device == device {
			affected = append(affected, v)
		}
	}
	s.mu.RUnlock()

	for _, v := range affected {
		v.forgetSession()
		s.audit.Emit(ctx, s.auditEvent(ctx, v, audit.ActionSessionSignedOut))
	}
	s.logger.InfoContext(ctx, "device session signed out", "open_visits", len(affected))
	return nil
}

// Close ends a visit.
func (s *Service) Close(ctx context.Context, visitID id.VisitID) error {
	s.mu.Lock()
	v, ok := s.visits[visitID]
	if ok {
		delete(s.visits, visitID)
	}
	active := len(s.visits)
	s.mu.Unlock()
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "visit not found")
	}
	v.debouncer.Cancel()
	s.metrics.SetActiveVisits(active)
	return nil
}

// ExpireIdle drops visits idle for longer than the visit TTL and returns
// how many were dropped.
func (s *Service) ExpireIdle(ctx context.Context) int {
	now := s.now()
	var expired []*visit
	s.mu.Lock()
	for visitID, v := range s.visits {
		if v.idleSince(now) > s.ttl {
			delete(s.visits, visitID)
			expired = append(expired, v)
		}
	}
	active := len(s.visits)
	s.mu.Unlock()

	for _, v := range expired {
		v.debouncer.Cancel()
		s.audit.Emit(ctx, s.auditEvent(ctx, v, audit.ActionVisitExpired))
	}
	if len(expired) > 0 {
		s.metrics.IncrementExpired(len(expired))
		s.metrics.SetActiveVisits(active)
		s.logger.InfoContext(ctx, "expired idle visits", "count", len(expired))
	}
	return len(expired)
}

// RunJanitor expires idle visits every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.ExpireIdle(ctx)
		}
	}
}

// Shutdown cancels every pending recompute.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.visits {
		v.debouncer.Cancel()
	}
}

func (s *Service) ActiveVisits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visits)
}

func (s *Service) step(ctx context.Context, visitID id.VisitID, fn func(context.Context, *visit) error) (*VisitView, error) {
	v, err := s.visit(visitID)
	if err != nil {
		return nil, err
	}
	ctx = requestcontext.WithVisitID(ctx, v.id)
	if err := fn(ctx, v); err != nil {
		return nil, err
	}
	return s.view(v), nil
}

func (s *Service) visit(visitID id.VisitID) (*visit, error) {
	s.mu.RLock()
	v, ok := s.visits[visitID]
	s.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "visit not found")
	}
	v.touch(s.now())
	return v, nil
}

func (s *Service) view(v *visit) *VisitView {
	return &VisitView{
		ID:            v.id,
		OrgSlug:       v.slug,
		OrgID:         v.scope.OrgID,
		EventID:       v.scope.EventID,
		Recomputing:   v.debouncer.Pending(),
		DeviceSession: v.session(),
		View:          v.controller.Snapshot(),
	}
}

func (s *Service) observe(v *visit) flow.Observer {
	return func(ctx context.Context, t flow.Transition) {
		s.metrics.IncrementTransition(t.From.String(), t.To.String(), t.Event.String())
		event := s.auditEvent(ctx, v, audit.ActionFlowTransition)
		event.From = t.From.String()
		event.To = t.To.String()
		event.Outcome = t.Event.String()
		s.audit.Emit(ctx, event)
	}
}

func (s *Service) recordFailure(ctx context.Context, v *visit, step string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation:
		s.metrics.IncrementValidationFailure(step)
	case dErrors.CodeConflict, dErrors.CodeStale, dErrors.CodeInvalidState:
	default:
		s.logger.WarnContext(ctx, "registration step failed",
			"visit_id", v.id,
			"step", step,
			"error", err,
		)
	}
}

func (s *Service) emitSessionBound(ctx context.Context, v *visit) {
	event := s.auditEvent(ctx, v, audit.ActionSessionBound)
	event.SessionID = v.controller.Snapshot().SessionID
	s.audit.Emit(ctx, event)
}

func (s *Service) emitRegistrationSaved(ctx context.Context, v *visit, outcome string) {
	event := s.auditEvent(ctx, v, audit.ActionRegistrationSaved)
	event.Outcome = outcome
	s.audit.Emit(ctx, event)
}

func (s *Service) auditEvent(ctx context.Context, v *visit, action audit.Action) audit.Event {
	return audit.Event{
		Action:    action,
		VisitID:   v.id,
		OrgID:     v.scope.OrgID,
		EventID:   v.scope.EventID,
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    requestcontext.DeviceName(ctx),
	}
}
