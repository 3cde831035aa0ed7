// Package local implements the registration backend in-process over the
// attendee stores. It serves deployments without a remote backend and the
// service tests.
package local

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/ports"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/store"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/tx"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

var _ ports.Backend = (*Backend)(nil)

// Backend matches identifiers and records registrations.
type Backend struct {
	attendees  store.AttendeeStore
	eventUsers store.EventUserStore
	tx         tx.Transactor
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	// serializes read-modify-write of registrations
	mu sync.Mutex
}

type Option func(*Backend)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTransactor makes Register write the attendee and the event registration
// in one transaction.
func WithTransactor(t tx.Transactor) Option {
	return func(b *Backend) {
		if t != nil {
			b.tx = t
		}
	}
}

// WithClock fixes the record timestamps. Without it they use the request
// time carried by the context.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator for new records.
func WithIDGenerator(newID func() string) Option {
	return func(b *Backend) {
		if newID != nil {
			b.newID = newID
		}
	}
}

func New(attendees store.AttendeeStore, eventUsers store.EventUserStore, opts ...Option) *Backend {
	b := &Backend{
		attendees:  attendees,
		eventUsers: eventUsers,
		tx:         tx.None{},
		logger:     slog.Default(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) clock(ctx context.Context) time.Time {
	if b.now != nil {
		return b.now()
	}
	return requestcontext.Now(ctx)
}

// Resolve compares the non-empty identifiers against every attendee of the
// organization. An attendee agreeing on all of them is a match; one agreeing
// on some but not all yields InvalidFields naming the disagreeing fields,
// preferring the attendee with the most agreeing fields.
func (b *Backend) Resolve(ctx context.Context, req models.MatchRequest) (models.MatchResult, error) {
	full, mismatched, err := b.match(ctx, req)
	if err != nil {
		return models.MatchResult{}, err
	}
	if full == nil {
		if len(mismatched) > 0 {
			return models.InvalidFields(mismatched...), nil
		}
		return models.NotFound(), nil
	}
	if req.OrgScoped() {
		return models.OrgOnly(full), nil
	}
	eu, err := b.eventUsers.Find(ctx, req.EventID, full.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.OrgOnly(full), nil
	}
	if err != nil {
		return models.MatchResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up event registration")
	}
	return models.EventRegistered(full, eu), nil
}

func (b *Backend) FindRegistration(ctx context.Context, req models.MatchRequest) (models.Registration, bool, error) {
	full, _, err := b.match(ctx, req)
	if err != nil || full == nil {
		return models.Registration{}, false, err
	}
	reg := models.Registration{Attendee: full}
	if req.EventID == "" {
		return reg, true, nil
	}
	eu, err := b.eventUsers.Find(ctx, req.EventID, full.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return models.Registration{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up event registration")
	default:
		reg.EventUser = eu
	}
	return reg, true, nil
}

// Register creates the attendee for the email or merges values into the
// existing one, then registers it for the event when one is given.
func (b *Backend) Register(ctx context.Context, req models.RegisterRequest) (models.Registration, error) {
	email := form.NormalizeEmail(req.Email)
	if email == "" {
		return models.Registration{}, dErrors.New(dErrors.CodeValidation, "email is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock(ctx)
	attendee, err := b.attendees.FindByEmail(ctx, req.OrgID, email)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		attendee = &models.Attendee{
			ID:        id.AttendeeID(b.newID()),
			OrgID:     req.OrgID,
			Email:     email,
			Values:    req.Values.Clone(),
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		return models.Registration{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up attendee")
	default:
		attendee.Values = attendee.Values.Merge(req.Values)
		attendee.UpdatedAt = now
	}

	reg := models.Registration{Attendee: attendee}
	err = b.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := b.saveAttendee(ctx, attendee); err != nil {
			return err
		}
		if req.EventID == "" {
			return nil
		}
		eu, err := b.join(ctx, req.EventID, attendee.ID, req.SessionID, now)
		if err != nil {
			return err
		}
		reg.EventUser = eu
		return nil
	})
	if err != nil {
		return models.Registration{}, err
	}
	b.logger.InfoContext(ctx, "attendee registered",
		"org_id", req.OrgID,
		"event_id", req.EventID,
		"attendee_id", attendee.ID,
		"with_session", req.SessionID != "",
	)
	return reg, nil
}

func (b *Backend) UpdateRegistration(ctx context.Context, req models.UpdateRequest) (*models.Attendee, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	attendee, err := b.attendees.FindByID(ctx, req.AttendeeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "attendee not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up attendee")
	}
	attendee.Values = attendee.Values.Merge(req.Values)
	if email := form.NormalizeEmail(req.Email); email != "" {
		attendee.Email = email
	}
	attendee.UpdatedAt = b.clock(ctx)
	if err := b.saveAttendee(ctx, attendee); err != nil {
		return nil, err
	}
	return attendee, nil
}

func (b *Backend) AssociateSession(ctx context.Context, req models.AssociateRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	attendee, err := b.attendees.FindByEmail(ctx, req.OrgID, form.NormalizeEmail(req.Email))
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "attendee not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up attendee")
	}
	eu, err := b.eventUsers.Find(ctx, req.EventID, attendee.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "attendee is not registered for the event")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up event registration")
	}
	eu.SessionID = req.SessionID
	if err := b.eventUsers.Save(ctx, eu); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save event registration")
	}
	return nil
}

func (b *Backend) join(ctx context.Context, eventID id.EventID, attendeeID id.AttendeeID, sessionID id.SessionID, now time.Time) (*models.EventUser, error) {
	eu, err := b.eventUsers.Find(ctx, eventID, attendeeID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		eu = &models.EventUser{
			ID:           id.EventUserID(b.newID()),
			EventID:      eventID,
			AttendeeID:   attendeeID,
			RegisteredAt: now,
		}
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up event registration")
	}
	if sessionID != "" {
		eu.SessionID = sessionID
	}
	if err := b.eventUsers.Save(ctx, eu); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save event registration")
	}
	return eu, nil
}

func (b *Backend) saveAttendee(ctx context.Context, attendee *models.Attendee) error {
	err := b.attendees.Save(ctx, attendee)
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.New(dErrors.CodeConflict, "email already belongs to another attendee")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attendee")
	}
	return nil
}

// match returns the attendee agreeing on every provided identifier, or the
// fields the closest partial match disagrees on.
func (b *Backend) match(ctx context.Context, req models.MatchRequest) (*models.Attendee, []string, error) {
	provided := providedIdentifiers(req.Identifiers)
	if len(provided) == 0 {
		return nil, nil, nil
	}
	candidates, err := b.attendees.ListByOrg(ctx, req.OrgID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attendees")
	}

	var bestMismatch []string
	bestAgree := 0
	for _, a := range candidates {
		agree, mismatch := compare(provided, a)
		if agree == 0 {
			continue
		}
		if len(mismatch) == 0 {
			return a, nil, nil
		}
		if agree > bestAgree {
			bestAgree = agree
			bestMismatch = mismatch
		}
	}
	return nil, bestMismatch, nil
}

type identifier struct {
	field string
	value string
}

func providedIdentifiers(values form.ValueSet) []identifier {
	var out []identifier
	for field, v := range values {
		if form.IsEmpty(v) {
			continue
		}
		out = append(out, identifier{field: field, value: fold(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].field < out[j].field })
	return out
}

func compare(provided []identifier, a *models.Attendee) (agree int, mismatch []string) {
	for _, p := range provided {
		stored := a.Values[p.field]
		if form.IsEmpty(stored) && strings.EqualFold(p.field, "email") {
			stored = a.Email
		}
		if fold(stored) == p.value {
			agree++
		} else {
			mismatch = append(mismatch, p.field)
		}
	}
	return agree, mismatch
}

// fold normalizes an identifier for comparison. A Caser is not safe for
// concurrent use, so each call builds its own.
func fold(v any) string {
	return cases.Fold().String(strings.TrimSpace(form.Stringify(v)))
}
