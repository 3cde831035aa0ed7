package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/genialityco/gen-live-web-sub000/internal/form/dependency"
	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/form/validation"
	identity "github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

const (
	NoticeNotFound = "We could not find a registration with that information. Complete the form to register."
	NoticeMismatch = "Some of the information does not match our records."
)

// Resolver classifies identifier values against stored attendees.
type Resolver interface {
	Resolve(ctx context.Context, req identity.MatchRequest) (identity.MatchResult, error)
}

// Registrar looks up and writes registrations.
type Registrar interface {
	FindRegistration(ctx context.Context, req identity.MatchRequest) (identity.Registration, bool, error)
	Register(ctx context.Context, req identity.RegisterRequest) (identity.Registration, error)
	UpdateRegistration(ctx context.Context, req identity.UpdateRequest) (*identity.Attendee, error)
	AssociateSession(ctx context.Context, req identity.AssociateRequest) error
}

// SessionBinder returns the device's session, associating email with it.
type SessionBinder interface {
	Bind(ctx context.Context, device id.DeviceID, email string) (id.SessionID, error)
}

// Scope is what a visit registers for. An empty EventID scopes the visit to
// the organization.
type Scope struct {
	OrgID   id.OrgID
	EventID id.EventID
	Device  id.DeviceID
}

func (s Scope) OrgScoped() bool { return s.EventID == "" }

// Transition records one applied state change.
type Transition struct {
	From       State
	To         State
	Event      Event
	Generation uint64
}

// Observer is told about transitions after the controller's lock is released.
type Observer func(ctx context.Context, t Transition)

// Controller owns the flow state and value set of one visit.
//
// Backend calls run without the lock held. Each call records the generation
// it started in; Load, Reset and Back bump the generation, and a result from
// an older generation is discarded with a CodeStale error. Only one backend
// step runs at a time; a second Verify, Continue or Submit while one is in
// flight fails with CodeConflict without calling the backend.
type Controller struct {
	scope     Scope
	resolver  Resolver
	registrar Registrar
	binder    SessionBinder
	observer  Observer
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	schema     *models.FormSchema
	values     models.ValueSet
	generation uint64
	op         *operation
	errors     validation.Errors
	mismatched []string
	notice     string
	attendee   *identity.Attendee
	eventUser  *identity.EventUser
	sessionID  id.SessionID
	fired      []Transition
}

type operation struct {
	name       string
	generation uint64
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

func New(scope Scope, resolver Resolver, registrar Registrar, binder SessionBinder, opts ...Option) *Controller {
	c := &Controller{
		scope:     scope,
		resolver:  resolver,
		registrar: registrar,
		binder:    binder,
		logger:    slog.Default(),
		state:     StateLoading,
		values:    models.ValueSet{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Scope() Scope { return c.scope }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load installs schema and seeds the value set. Loading over a running flow
// resets it first, so results still in flight for the old schema are
// discarded.
func (c *Controller) Load(ctx context.Context, schema *models.FormSchema) error {
	if schema == nil {
		return dErrors.New(dErrors.CodeConfiguration, "form schema is required")
	}
	if !schema.Enabled {
		return dErrors.New(dErrors.CodeInvalidState, "registration is closed")
	}

	c.mu.Lock()
	if c.state != StateLoading {
		c.mustApply(EventReset)
	}
	c.clearLocked()
	c.schema = schema
	values := models.NewValueSet(schema)
	c.values = values.Merge(dependency.Recompute(schema, values))

	event := EventSchemaLoadedNoIdentifiers
	if schema.HasIdentifiers() {
		event = EventSchemaLoaded
	}
	err := c.apply(event)
	return c.unlockAndNotify(ctx, err)
}

// Reset returns the flow to Loading and forgets everything but the scope.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	c.mustApply(EventReset)
	c.clearLocked()
	c.schema = nil
	c.values = models.ValueSet{}
	_ = c.unlockAndNotify(ctx, nil)
}

func (c *Controller) ChooseExisting(ctx context.Context) error {
	return c.navigate(ctx, EventChooseExisting)
}

func (c *Controller) ChooseNew(ctx context.Context) error {
	return c.navigate(ctx, EventChooseNew)
}

// Back leaves QuickLogin. A verification still in flight is superseded.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	if _, err := Next(c.state, EventBack); err != nil {
		c.mu.Unlock()
		return err
	}
	c.generation++
	c.op = nil
	c.errors = nil
	c.mismatched = nil
	c.notice = ""
	err := c.apply(EventBack)
	return c.unlockAndNotify(ctx, err)
}

// UpdateInfo moves from Summary to the update form, prefilled with the
// attendee's stored data.
func (c *Controller) UpdateInfo(ctx context.Context) error {
	c.mu.Lock()
	if err := c.idleLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.apply(EventUpdateInfo); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.attendee != nil {
		prefill := models.ValueSet{}
		for k, v := range c.attendee.Values {
			if f, ok := c.schema.Field(k); ok && !dependency.IsOwned(f) {
				prefill[k] = v
			}
		}
		c.values = c.values.Merge(prefill)
		c.values = c.values.Merge(dependency.Recompute(c.schema, c.values))
	}
	return c.unlockAndNotify(ctx, nil)
}

// Edit merges user input into the value set. Unknown and auto-calculated
// fields are dropped and returned; the caller schedules the recompute.
// Input is refused while a backend call is in flight.
func (c *Controller) Edit(update models.ValueSet) (applied models.ValueSet, dropped []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateQuickLogin, StateFullRegistration, StateUpdateRegistration:
	default:
		return nil, nil, dErrors.Newf(dErrors.CodeInvalidState, "values cannot be edited in %s", c.state)
	}
	if err := c.idleLocked(); err != nil {
		return nil, nil, err
	}

	applied = models.ValueSet{}
	for k, v := range update {
		f, ok := c.schema.Field(k)
		if !ok || dependency.IsOwned(f) {
			dropped = append(dropped, k)
			continue
		}
		applied[k] = v
	}
	c.values = c.values.Merge(applied)
	for k := range applied {
		delete(c.errors, k)
		c.mismatched = without(c.mismatched, k)
	}
	return applied, dropped, nil
}

// Recompute brings derived values up to date and returns what changed.
func (c *Controller) Recompute() models.ValueSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schema == nil {
		return models.ValueSet{}
	}
	update := dependency.Recompute(c.schema, c.values)
	if len(update) > 0 {
		c.values = c.values.Merge(update)
	}
	return update
}

// Verify looks up the identifier values. An InvalidFields result is returned
// without error and keeps the flow in QuickLogin with the mismatched fields
// highlighted. EventRegistered binds the session before completing.
func (c *Controller) Verify(ctx context.Context) (identity.MatchResult, error) {
	c.mu.Lock()
	if c.state != StateQuickLogin {
		c.mu.Unlock()
		return identity.MatchResult{}, dErrors.Newf(dErrors.CodeInvalidState, "verify is not allowed in %s", c.state)
	}
	if err := c.idleLocked(); err != nil {
		c.mu.Unlock()
		return identity.MatchResult{}, err
	}
	ids := identifierIDs(c.schema)
	if errs := validation.ValidateSubset(c.schema, c.values, ids); !errs.Valid() {
		c.errors = errs
		c.mu.Unlock()
		return identity.MatchResult{}, errs
	}
	c.errors = nil
	req := identity.MatchRequest{
		OrgID:       c.scope.OrgID,
		EventID:     c.scope.EventID,
		Identifiers: c.values.Only(ids),
	}
	fallbackEmail := c.schema.EmailOf(c.values)
	op := c.beginLocked("verify")
	c.mu.Unlock()

	result, err := c.resolver.Resolve(ctx, req)
	if err == nil && !result.Valid() {
		err = dErrors.Newf(dErrors.CodeUnavailable, "identity lookup returned an incomplete %s result", result.Kind)
	}
	if err != nil {
		return identity.MatchResult{}, c.settle(ctx, op, func() error {
			return transportError(err, "identity lookup failed")
		})
	}
	if c.scope.OrgScoped() && result.Kind == identity.MatchEventRegistered {
		result = identity.OrgOnly(result.Attendee)
	}

	var sessionID id.SessionID
	if result.Kind == identity.MatchEventRegistered {
		if !c.current(op) {
			return identity.MatchResult{}, c.settle(ctx, op, nil)
		}
		email := emailOf(result.Attendee, fallbackEmail)
		sessionID, err = c.bindAndAssociate(ctx, email, result.EventUser)
		if err != nil {
			return identity.MatchResult{}, c.settle(ctx, op, func() error { return err })
		}
	}

	err = c.settle(ctx, op, func() error {
		switch result.Kind {
		case identity.MatchNotFound:
			c.notice = NoticeNotFound
			c.mismatched = nil
			return c.apply(EventMatchNotFound)
		case identity.MatchInvalidFields:
			c.mismatched = append([]string(nil), result.Mismatched...)
			c.notice = NoticeMismatch
			if result.Reason != "" {
				c.notice = result.Reason
			}
			return c.apply(EventMatchMismatch)
		case identity.MatchOrgOnly:
			c.attendee = result.Attendee
			c.eventUser = nil
			c.mismatched = nil
			c.notice = ""
			return c.apply(EventMatchOrgOnly)
		default:
			c.attendee = result.Attendee
			c.eventUser = result.EventUser
			c.linkSession(sessionID)
			c.mismatched = nil
			c.notice = ""
			return c.apply(EventMatchEventRegistered)
		}
	})
	if err != nil {
		return identity.MatchResult{}, err
	}
	c.logger.InfoContext(ctx, "identifiers verified",
		"org_id", c.scope.OrgID,
		"event_id", c.scope.EventID,
		"outcome", result.Kind,
	)
	return result, nil
}

// Continue confirms the summary: the attendee joins the event if needed and
// the device session is bound. Org-scoped visits only bind.
func (c *Controller) Continue(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateSummary {
		c.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvalidState, "continue is not allowed in %s", c.state)
	}
	if err := c.idleLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.attendee == nil {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeInvariantViolation, "summary has no attendee")
	}
	attendee := c.attendee
	eventUser := c.eventUser
	email := emailOf(attendee, c.schema.EmailOf(c.values))
	identifiers := c.values.Only(identifierIDs(c.schema))
	op := c.beginLocked("continue")
	c.mu.Unlock()

	if !c.scope.OrgScoped() && eventUser == nil {
		var err error
		eventUser, err = c.joinEvent(ctx, op, attendee, email, identifiers, attendee.Values)
		if err != nil {
			return c.settle(ctx, op, func() error { return err })
		}
	}

	sessionID, err := c.bindAndAssociate(ctx, email, eventUser)
	if err != nil {
		return c.settle(ctx, op, func() error { return err })
	}
	return c.settle(ctx, op, func() error {
		c.linkSession(sessionID)
		return c.apply(EventContinue)
	})
}

// Submit validates the whole form and registers it. A full registration
// binds the session and registers with it; an update replaces the stored
// data, joins the event if needed and binds. The value set is left as it
// was when any step fails.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	mode := c.state
	if mode != StateFullRegistration && mode != StateUpdateRegistration {
		c.mu.Unlock()
		return dErrors.Newf(dErrors.CodeInvalidState, "submit is not allowed in %s", c.state)
	}
	if err := c.idleLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	values := c.values.Merge(dependency.Recompute(c.schema, c.values))
	errs := validation.Validate(c.schema, values)
	email := c.schema.EmailOf(values)
	if errs.Valid() && email == "" {
		errs[emailFieldID(c.schema)] = "An email address is required to register"
	}
	if !errs.Valid() {
		c.errors = errs
		c.mu.Unlock()
		return errs
	}
	c.errors = nil
	attendee := c.attendee
	eventUser := c.eventUser
	identifiers := values.Only(identifierIDs(c.schema))
	op := c.beginLocked("submit")
	c.mu.Unlock()

	var (
		reg       identity.Registration
		sessionID id.SessionID
		err       error
	)
	if mode == StateFullRegistration {
		reg, sessionID, err = c.registerNew(ctx, email, values)
	} else {
		reg, sessionID, err = c.updateExisting(ctx, op, attendee, eventUser, email, identifiers, values)
	}
	if err != nil {
		return c.settle(ctx, op, func() error { return err })
	}

	err = c.settle(ctx, op, func() error {
		c.values = values
		if reg.Attendee != nil {
			c.attendee = reg.Attendee
		}
		if reg.EventUser != nil {
			c.eventUser = reg.EventUser
		}
		c.linkSession(sessionID)
		c.notice = ""
		return c.apply(EventSubmitted)
	})
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "registration submitted",
		"org_id", c.scope.OrgID,
		"event_id", c.scope.EventID,
		"mode", mode,
	)
	return nil
}

func (c *Controller) registerNew(ctx context.Context, email string, values models.ValueSet) (identity.Registration, id.SessionID, error) {
	sessionID, err := c.binder.Bind(ctx, c.scope.Device, email)
	if err != nil {
		return identity.Registration{}, "", transportError(err, "failed to bind session")
	}
	reg, err := c.registrar.Register(ctx, identity.RegisterRequest{
		OrgID:     c.scope.OrgID,
		EventID:   c.scope.EventID,
		Email:     email,
		Values:    values,
		SessionID: sessionID,
	})
	if err != nil {
		return identity.Registration{}, "", transportError(err, "failed to register")
	}
	return reg, sessionID, nil
}

func (c *Controller) updateExisting(ctx context.Context, op *operation, attendee *identity.Attendee, eventUser *identity.EventUser,
	email string, identifiers, values models.ValueSet) (identity.Registration, id.SessionID, error) {
	if attendee == nil {
		return identity.Registration{}, "", dErrors.New(dErrors.CodeInvariantViolation, "update has no attendee")
	}
	updated, err := c.registrar.UpdateRegistration(ctx, identity.UpdateRequest{
		AttendeeID: attendee.ID,
		Email:      email,
		Values:     values,
	})
	if err != nil {
		return identity.Registration{}, "", transportError(err, "failed to update registration")
	}
	reg := identity.Registration{Attendee: updated, EventUser: eventUser}
	c.record(op, updated, nil)

	if !c.scope.OrgScoped() && eventUser == nil {
		joined, err := c.joinEvent(ctx, op, updated, email, identifiers, values)
		if err != nil {
			return identity.Registration{}, "", err
		}
		reg.EventUser = joined
	}

	sessionID, err := c.bindAndAssociate(ctx, email, reg.EventUser)
	if err != nil {
		return identity.Registration{}, "", err
	}
	return reg, sessionID, nil
}

// joinEvent registers attendee for the visit's event unless the backend
// already holds that registration, such as one made from another device
// after Verify ran.
func (c *Controller) joinEvent(ctx context.Context, op *operation, attendee *identity.Attendee,
	email string, identifiers, values models.ValueSet) (*identity.EventUser, error) {
	existing, found, err := c.registrar.FindRegistration(ctx, identity.MatchRequest{
		OrgID:       c.scope.OrgID,
		EventID:     c.scope.EventID,
		Identifiers: identifiers,
	})
	if err != nil {
		return nil, transportError(err, "failed to look up event registration")
	}
	if found && existing.EventUser != nil && existing.Attendee != nil && existing.Attendee.ID == attendee.ID {
		c.record(op, nil, existing.EventUser)
		return existing.EventUser, nil
	}

	joined, err := c.registrar.Register(ctx, identity.RegisterRequest{
		OrgID:   c.scope.OrgID,
		EventID: c.scope.EventID,
		Email:   email,
		Values:  values,
	})
	if err != nil {
		return nil, transportError(err, "failed to join event")
	}
	c.record(op, joined.Attendee, joined.EventUser)
	return joined.EventUser, nil
}

// bindAndAssociate binds the device session and links it to eventUser when
// the registration does not carry it yet.
func (c *Controller) bindAndAssociate(ctx context.Context, email string, eventUser *identity.EventUser) (id.SessionID, error) {
	sessionID, err := c.binder.Bind(ctx, c.scope.Device, email)
	if err != nil {
		return "", transportError(err, "failed to bind session")
	}
	if c.scope.OrgScoped() || (eventUser != nil && eventUser.SessionID == sessionID) {
		return sessionID, nil
	}
	err = c.registrar.AssociateSession(ctx, identity.AssociateRequest{
		OrgID:     c.scope.OrgID,
		EventID:   c.scope.EventID,
		Email:     email,
		SessionID: sessionID,
	})
	if err != nil {
		return "", transportError(err, "failed to associate session")
	}
	return sessionID, nil
}

// record keeps side effects that already happened so a retry does not
// repeat them.
func (c *Controller) record(op *operation, attendee *identity.Attendee, eventUser *identity.EventUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if op.generation != c.generation {
		return
	}
	if attendee != nil {
		c.attendee = attendee
	}
	if eventUser != nil {
		c.eventUser = eventUser
	}
}

// linkSession records the bound session, also on the local copy of the
// event registration it was associated with.
func (c *Controller) linkSession(sessionID id.SessionID) {
	c.sessionID = sessionID
	if c.scope.OrgScoped() || c.eventUser == nil || c.eventUser.SessionID == sessionID {
		return
	}
	eu := *c.eventUser
	eu.SessionID = sessionID
	c.eventUser = &eu
}

func (c *Controller) navigate(ctx context.Context, event Event) error {
	c.mu.Lock()
	if err := c.idleLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	err := c.apply(event)
	if err == nil {
		c.errors = nil
		c.notice = ""
	}
	return c.unlockAndNotify(ctx, err)
}

func (c *Controller) idleLocked() error {
	if c.op != nil {
		return dErrors.Newf(dErrors.CodeConflict, "%s is already in progress", c.op.name)
	}
	return nil
}

func (c *Controller) beginLocked(name string) *operation {
	c.op = &operation{name: name, generation: c.generation}
	return c.op
}

func (c *Controller) current(op *operation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return op.generation == c.generation
}

// settle ends op and, when its generation is still current, runs apply under
// the lock. A superseded op returns CodeStale and changes nothing.
func (c *Controller) settle(ctx context.Context, op *operation, apply func() error) error {
	c.mu.Lock()
	if c.op == op {
		c.op = nil
	}
	if op.generation != c.generation {
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "discarding superseded result",
			"operation", op.name,
			"generation", op.generation,
		)
		return dErrors.Newf(dErrors.CodeStale, "%s result belongs to a superseded flow", op.name)
	}
	var err error
	if apply != nil {
		err = apply()
	}
	return c.unlockAndNotify(ctx, err)
}

func (c *Controller) apply(event Event) error {
	next, err := Next(c.state, event)
	if err != nil {
		return err
	}
	c.fired = append(c.fired, Transition{From: c.state, To: next, Event: event, Generation: c.generation})
	c.state = next
	return nil
}

func (c *Controller) mustApply(event Event) {
	if err := c.apply(event); err != nil {
		panic(err)
	}
}

func (c *Controller) unlockAndNotify(ctx context.Context, err error) error {
	fired := c.fired
	c.fired = nil
	c.mu.Unlock()
	if c.observer != nil {
		for _, t := range fired {
			c.observer(ctx, t)
		}
	}
	return err
}

func (c *Controller) clearLocked() {
	c.generation++
	c.op = nil
	c.errors = nil
	c.mismatched = nil
	c.notice = ""
	c.attendee = nil
	c.eventUser = nil
	c.sessionID = ""
}

func transportError(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case dErrors.CodeOf(err) == dErrors.CodeInternal:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	return err
}

func identifierIDs(schema *models.FormSchema) []string {
	fields := schema.IdentifierFields()
	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	return ids
}

func emailOf(attendee *identity.Attendee, fallback string) string {
	if attendee != nil {
		if e := models.NormalizeEmail(attendee.Email); e != "" {
			return e
		}
	}
	return fallback
}

func emailFieldID(schema *models.FormSchema) string {
	for _, f := range schema.Ordered() {
		if f.Type == models.FieldEmail {
			return f.ID
		}
	}
	return "email"
}

func without(ids []string, drop string) []string {
	out := ids[:0]
	for _, s := range ids {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
